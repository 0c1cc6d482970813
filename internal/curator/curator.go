package curator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/elys-network/curate/internal/analyzer"
	"github.com/elys-network/curate/internal/logger"
	"github.com/elys-network/curate/internal/planner"
	"github.com/elys-network/curate/internal/types"

	"github.com/rs/zerolog"
)

const (
	// Export constants for use in main.go
	DEFAULT_PARAMETERS_CONFIG_NAME = "default_curator_strategy"

	// MONITORED_PORTFOLIO_LIMIT bounds how many recent snapshots a cycle re-checks.
	MONITORED_PORTFOLIO_LIMIT = 50
)

// ErrCatalogNotReady is returned by catalog-backed operations before the first successful refresh.
var ErrCatalogNotReady = errors.New("pool catalog has not been loaded yet")

// CatalogSource supplies unscored catalog pools. held lists pool IDs currently allocated to,
// for which the source may fetch extra history.
type CatalogSource interface {
	FetchCatalog(ctx context.Context, params types.EngineParameters, held []string) ([]types.PoolSnapshot, error)
}

// PortfolioStore persists portfolio snapshots and their analyses.
type PortfolioStore interface {
	SavePortfolio(ctx context.Context, snapshot types.PortfolioSnapshot) (int64, error)
	GetPortfolio(ctx context.Context, snapshotID int64) (*types.PortfolioSnapshot, error)
	RecentPortfolios(ctx context.Context, limit int) ([]types.PortfolioSnapshot, error)
	SaveAnalysis(ctx context.Context, snapshotID, runNumber int64, analysis types.RebalanceAnalysis) (int64, error)
	LatestAnalysis(ctx context.Context, snapshotID int64) (*types.AnalysisRecord, error)
	Analyses(ctx context.Context, snapshotID int64, limit int) ([]types.AnalysisRecord, error)
	NextRunNumber(ctx context.Context) (int64, error)
	CurrentRunNumber(ctx context.Context) (int64, error)
}

// Notifier delivers analysis alerts and cycle failures.
type Notifier interface {
	NotifyAnalysis(ctx context.Context, snapshot types.PortfolioSnapshot, analysis types.RebalanceAnalysis) error
	NotifyCycleError(ctx context.Context, err error) error
}

// Curator owns the scored catalog and runs the monitoring loop over stored portfolios.
type Curator struct {
	// Core dependencies
	logger   zerolog.Logger
	source   CatalogSource
	store    PortfolioStore
	notifier Notifier
	now      func() time.Time

	// Configuration
	paramsID int64

	// Runtime state, guarded by mu
	mu               sync.RWMutex
	params           types.EngineParameters
	catalog          []types.PoolSnapshot
	catalogUpdatedAt time.Time
	refreshFailing   bool

	cycleCount int
}

// Config holds the configuration for creating a new Curator instance
type Config struct {
	Source CatalogSource
	Store  PortfolioStore
	// Notifier is optional. Nil disables notifications.
	Notifier Notifier
	Params   types.EngineParameters
	// ParamsID is the engine_parameters row the params were loaded from, 0 for defaults.
	ParamsID int64
	// Now overrides the clock. Nil means time.Now().UTC().
	Now func() time.Time
}

// NewCurator creates a new Curator instance with dependency injection
func NewCurator(cfg Config) (*Curator, error) {
	if err := validateCuratorConfig(cfg); err != nil {
		return nil, fmt.Errorf("curator configuration validation failed: %w", err)
	}

	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	c := &Curator{
		logger:   logger.GetForComponent("curator_core"),
		source:   cfg.Source,
		store:    cfg.Store,
		notifier: cfg.Notifier,
		now:      now,
		paramsID: cfg.ParamsID,
		params:   cfg.Params,
	}

	c.logger.Info().
		Int64("paramsID", c.paramsID).
		Bool("notifications", c.notifier != nil).
		Msg("Curator instance created successfully with dependency injection")

	return c, nil
}

func validateCuratorConfig(cfg Config) error {
	if cfg.Source == nil {
		return fmt.Errorf("catalog source cannot be nil")
	}
	if cfg.Store == nil {
		return fmt.Errorf("portfolio store cannot be nil")
	}
	if err := cfg.Params.Validate(); err != nil {
		return errors.Join(analyzer.ErrInvalidEngineParameters, err)
	}
	if cfg.ParamsID < 0 {
		return fmt.Errorf("params ID cannot be negative")
	}
	return nil
}

// Parameters returns the engine parameters in effect, including the latest market distribution.
func (c *Curator) Parameters() types.EngineParameters {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params
}

// ParamsID returns the engine_parameters row the curator runs with.
func (c *Curator) ParamsID() int64 {
	return c.paramsID
}

// Catalog returns a copy of the scored catalog and when it was refreshed.
func (c *Curator) Catalog() ([]types.PoolSnapshot, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.PoolSnapshot, len(c.catalog))
	copy(out, c.catalog)
	return out, c.catalogUpdatedAt
}

// scoredCatalog returns the cached catalog with the parameters it was scored under.
func (c *Curator) scoredCatalog() ([]types.PoolSnapshot, types.EngineParameters, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.catalogUpdatedAt.IsZero() {
		return nil, c.params, ErrCatalogNotReady
	}
	return c.catalog, c.params, nil
}

// ComputeRisk scores a single pool under the current parameters.
func (c *Curator) ComputeRisk(pool types.PoolSnapshot) (types.RiskResult, error) {
	return analyzer.ScorePool(pool, c.Parameters())
}

// OptimizePortfolio builds an allocation from the cached catalog.
func (c *Curator) OptimizePortfolio(ctx context.Context, req types.OptimizeRequest) (types.PortfolioResult, error) {
	if err := ctx.Err(); err != nil {
		return types.PortfolioResult{}, err
	}
	catalog, params, err := c.scoredCatalog()
	if err != nil {
		return types.PortfolioResult{}, err
	}

	result, err := analyzer.OptimizePortfolio(catalog, req, params)
	if err != nil {
		return types.PortfolioResult{}, err
	}
	result.GeneratedAt = c.now()
	return result, nil
}

// SavePortfolio stores an optimizer result as a snapshot for later rebalance checks.
func (c *Curator) SavePortfolio(ctx context.Context, req types.OptimizeRequest, result types.PortfolioResult, label string) (types.PortfolioSnapshot, error) {
	snapshot := types.PortfolioSnapshot{
		Label:           label,
		CreatedAt:       c.now(),
		TotalAllocation: req.TotalAllocation,
		RiskTolerance:   req.RiskTolerance,
		Diversification: req.Diversification,
		Result:          result,
		ParamsID:        c.paramsID,
	}

	id, err := c.store.SavePortfolio(ctx, snapshot)
	if err != nil {
		return types.PortfolioSnapshot{}, fmt.Errorf("failed to save portfolio snapshot: %w", err)
	}
	snapshot.SnapshotID = id

	c.logger.Info().
		Int64("snapshotID", id).
		Str("label", label).
		Int("poolCount", len(result.Allocations)).
		Msg("Portfolio snapshot saved")
	return snapshot, nil
}

// DetectRebalance checks allocations against the cached catalog.
func (c *Curator) DetectRebalance(ctx context.Context, allocations []types.Allocation, tolerance types.RiskTolerance) (types.RebalanceAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return types.RebalanceAnalysis{}, err
	}
	catalog, params, err := c.scoredCatalog()
	if err != nil {
		return types.RebalanceAnalysis{}, err
	}
	return planner.DetectRebalance(allocations, catalog, tolerance, params, planner.Options{Now: c.now()})
}

// AnalyzeSnapshot re-checks a stored portfolio on demand and persists the analysis with run number 0.
func (c *Curator) AnalyzeSnapshot(ctx context.Context, snapshotID int64) (types.AnalysisRecord, error) {
	snapshot, err := c.store.GetPortfolio(ctx, snapshotID)
	if err != nil {
		return types.AnalysisRecord{}, err
	}
	return c.analyzeAndSave(ctx, c.logger, *snapshot, 0)
}

// Portfolio loads a stored snapshot.
func (c *Curator) Portfolio(ctx context.Context, snapshotID int64) (*types.PortfolioSnapshot, error) {
	return c.store.GetPortfolio(ctx, snapshotID)
}

// RecentPortfolios lists stored snapshots, newest first.
func (c *Curator) RecentPortfolios(ctx context.Context, limit int) ([]types.PortfolioSnapshot, error) {
	return c.store.RecentPortfolios(ctx, limit)
}

// LastRunNumber returns the number of the latest monitoring run that analyzed portfolios.
func (c *Curator) LastRunNumber(ctx context.Context) (int64, error) {
	return c.store.CurrentRunNumber(ctx)
}

// Analyses lists stored analyses of a snapshot, newest first.
func (c *Curator) Analyses(ctx context.Context, snapshotID int64, limit int) ([]types.AnalysisRecord, error) {
	return c.store.Analyses(ctx, snapshotID, limit)
}

func (c *Curator) analyzeAndSave(ctx context.Context, log zerolog.Logger, snapshot types.PortfolioSnapshot, runNumber int64) (types.AnalysisRecord, error) {
	analysis, err := c.DetectRebalance(ctx, snapshot.Result.Allocations, snapshot.RiskTolerance)
	if err != nil {
		return types.AnalysisRecord{}, fmt.Errorf("analysis of snapshot %d failed: %w", snapshot.SnapshotID, err)
	}

	id, err := c.store.SaveAnalysis(ctx, snapshot.SnapshotID, runNumber, analysis)
	if err != nil {
		return types.AnalysisRecord{}, fmt.Errorf("failed to save analysis of snapshot %d: %w", snapshot.SnapshotID, err)
	}

	log.Info().
		Int64("snapshotID", snapshot.SnapshotID).
		Int64("analysisID", id).
		Str("health", string(analysis.OverallHealth)).
		Int("critical", analysis.Counts.Critical).
		Int("warning", analysis.Counts.Warning).
		Int("info", analysis.Counts.Info).
		Msg("Portfolio analysis saved")

	return types.AnalysisRecord{
		AnalysisID: id,
		SnapshotID: snapshot.SnapshotID,
		RunNumber:  runNumber,
		Analysis:   analysis,
	}, nil
}
