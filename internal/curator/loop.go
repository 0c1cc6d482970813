package curator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elys-network/curate/internal/analyzer"
	"github.com/elys-network/curate/internal/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RunLoop starts the monitoring loop with the specified interval
func (c *Curator) RunLoop(ctx context.Context, interval time.Duration) {
	c.logger.Info().
		Dur("interval", interval).
		Msg("Starting curator main loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run first cycle immediately
	c.runTrackedCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Curator loop stopped due to context cancellation")
			return
		case <-ticker.C:
			c.runTrackedCycle(ctx)
		}
	}
}

func (c *Curator) runTrackedCycle(ctx context.Context) {
	c.cycleCount++
	c.logger.Info().Int("cycle", c.cycleCount).Msg("Initiating curator cycle")
	if err := c.RunCycle(ctx); err != nil {
		c.logger.Error().Err(err).Int("cycle", c.cycleCount).Msg("Curator cycle failed")
		return
	}
	c.logger.Info().Int("cycle", c.cycleCount).Msg("Curator cycle completed")
}

// RunCycle refreshes the catalog and re-checks every recent stored portfolio against it.
func (c *Curator) RunCycle(ctx context.Context) error {
	cycleStartTime := time.Now()

	// Generate unique cycle ID for tracing logs across the entire cycle
	cycleID := uuid.New().String()
	cycleLogger := c.logger.With().Str("cycle_id", cycleID).Logger()

	cycleLogger.Info().Msg("--- Starting Curator Cycle ---")

	// --- 1. Load Monitored Portfolios ---
	cycleLogger.Info().Msg("Step 1: Loading recent portfolio snapshots...")
	snapshots, err := c.store.RecentPortfolios(ctx, MONITORED_PORTFOLIO_LIMIT)
	if err != nil {
		// The catalog can still be refreshed without the held pool list
		cycleLogger.Warn().Err(err).Msg("Failed to load portfolio snapshots, continuing with catalog refresh only")
		snapshots = nil
	}
	held := heldPoolIDs(snapshots)
	cycleLogger.Info().
		Int("portfolios", len(snapshots)).
		Int("heldPools", len(held)).
		Msg("Step 1: Portfolio snapshots loaded")

	// --- 2. Refresh Catalog ---
	cycleLogger.Info().Msg("Step 2: Refreshing pool catalog...")
	if err := c.refreshCatalog(ctx, cycleLogger, held); err != nil {
		c.reportRefreshFailure(ctx, cycleLogger, err)
		return fmt.Errorf("catalog refresh failed: %w", err)
	}
	c.markRefreshRecovered(cycleLogger)

	if len(snapshots) == 0 {
		cycleLogger.Info().
			Dur("duration", time.Since(cycleStartTime)).
			Msg("--- Curator Cycle Complete: no stored portfolios to analyze ---")
		return nil
	}

	// --- 3. Run Number ---
	runNumber, err := c.store.NextRunNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to increment run number: %w", err)
	}
	cycleLogger = cycleLogger.With().Int64("run", runNumber).Logger()

	// --- 4. Analyze Portfolios ---
	cycleLogger.Info().Msg("Step 4: Analyzing stored portfolios...")
	var failed, notified int
	for _, snapshot := range snapshots {
		if err := ctx.Err(); err != nil {
			return err
		}

		previous, err := c.store.LatestAnalysis(ctx, snapshot.SnapshotID)
		if err != nil {
			previous = nil
		}

		record, err := c.analyzeAndSave(ctx, cycleLogger, snapshot, runNumber)
		if err != nil {
			failed++
			cycleLogger.Error().Err(err).Int64("snapshotID", snapshot.SnapshotID).Msg("Portfolio analysis failed")
			continue
		}

		// --- 5. Notify ---
		if !shouldNotify(previous, record.Analysis) || c.notifier == nil {
			continue
		}
		if err := c.notifier.NotifyAnalysis(ctx, snapshot, record.Analysis); err != nil {
			cycleLogger.Error().Err(err).Int64("snapshotID", snapshot.SnapshotID).Msg("Failed to send analysis notification")
			continue
		}
		notified++
	}

	cycleLogger.Info().
		Int("analyzed", len(snapshots)-failed).
		Int("failed", failed).
		Int("notified", notified).
		Dur("duration", time.Since(cycleStartTime)).
		Msg("--- Curator Cycle Complete ---")

	if failed > 0 {
		return fmt.Errorf("%d of %d portfolio analyses failed", failed, len(snapshots))
	}
	return nil
}

// RefreshCatalog fetches, re-scores and caches the catalog outside the monitoring loop.
func (c *Curator) RefreshCatalog(ctx context.Context, held []string) error {
	return c.refreshCatalog(ctx, c.logger, held)
}

func (c *Curator) refreshCatalog(ctx context.Context, log zerolog.Logger, held []string) error {
	params := c.Parameters()

	pools, err := c.source.FetchCatalog(ctx, params, held)
	if err != nil {
		return err
	}

	market, err := analyzer.MarketApyDistribution(pools)
	if err != nil {
		log.Warn().
			Err(err).
			Float64("keptMean", params.Market.MeanApy).
			Float64("keptStdDev", params.Market.StdDevApy).
			Msg("Market distribution unavailable, keeping the previous one")
	} else {
		params = params.WithMarket(market)
		log.Debug().
			Float64("mean", market.MeanApy).
			Float64("stdDev", market.StdDevApy).
			Msg("Market distribution refreshed")
	}

	scored, errs := analyzer.ScoreCatalog(pools, params)
	for _, e := range errs {
		if errors.Is(e, analyzer.ErrInvalidEngineParameters) {
			return e
		}
	}
	if len(scored) == 0 {
		return fmt.Errorf("none of %d catalog pools could be scored", len(pools))
	}

	c.mu.Lock()
	c.params = params
	c.catalog = scored
	c.catalogUpdatedAt = c.now()
	c.mu.Unlock()

	log.Info().
		Int("fetched", len(pools)).
		Int("scored", len(scored)).
		Int("dropped", len(errs)).
		Msg("Pool catalog refreshed")
	return nil
}

// reportRefreshFailure notifies only on the first failure of a streak.
func (c *Curator) reportRefreshFailure(ctx context.Context, log zerolog.Logger, err error) {
	c.mu.Lock()
	first := !c.refreshFailing
	c.refreshFailing = true
	c.mu.Unlock()

	log.Error().Err(err).Bool("firstFailure", first).Msg("Catalog refresh failed, serving the previous catalog")
	if !first || c.notifier == nil {
		return
	}
	if nerr := c.notifier.NotifyCycleError(ctx, err); nerr != nil {
		log.Error().Err(nerr).Msg("Failed to send cycle error notification")
	}
}

func (c *Curator) markRefreshRecovered(log zerolog.Logger) {
	c.mu.Lock()
	recovered := c.refreshFailing
	c.refreshFailing = false
	c.mu.Unlock()
	if recovered {
		log.Info().Msg("Catalog refresh recovered")
	}
}

// shouldNotify is true for action_needed verdicts and for any verdict worse than the previous run.
// A portfolio without a previous analysis is compared against healthy.
func shouldNotify(previous *types.AnalysisRecord, current types.RebalanceAnalysis) bool {
	if current.OverallHealth == types.HealthActionNeeded {
		return true
	}
	prevRank := types.HealthHealthy.Rank()
	if previous != nil {
		prevRank = previous.Analysis.OverallHealth.Rank()
	}
	return current.OverallHealth.Rank() > prevRank
}

// heldPoolIDs returns the distinct pool IDs across snapshots in first-seen order.
func heldPoolIDs(snapshots []types.PortfolioSnapshot) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, s := range snapshots {
		for _, a := range s.Result.Allocations {
			if !seen[a.PoolID] {
				seen[a.PoolID] = true
				ids = append(ids, a.PoolID)
			}
		}
	}
	return ids
}
