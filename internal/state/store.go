package state

import (
	"context"

	"github.com/elys-network/curate/internal/types"
)

// Store exposes the package-level persistence functions as a value, so the curator can be given
// a database-backed store or a fake.
type Store struct{}

func (Store) SavePortfolio(ctx context.Context, snapshot types.PortfolioSnapshot) (int64, error) {
	return SavePortfolioSnapshot(ctx, snapshot)
}

func (Store) GetPortfolio(ctx context.Context, snapshotID int64) (*types.PortfolioSnapshot, error) {
	return GetPortfolioByID(ctx, snapshotID)
}

func (Store) RecentPortfolios(ctx context.Context, limit int) ([]types.PortfolioSnapshot, error) {
	return GetRecentPortfolios(ctx, limit)
}

func (Store) SaveAnalysis(ctx context.Context, snapshotID, runNumber int64, analysis types.RebalanceAnalysis) (int64, error) {
	return SaveAnalysis(ctx, snapshotID, runNumber, analysis)
}

func (Store) LatestAnalysis(ctx context.Context, snapshotID int64) (*types.AnalysisRecord, error) {
	return GetLatestAnalysis(ctx, snapshotID)
}

func (Store) Analyses(ctx context.Context, snapshotID int64, limit int) ([]types.AnalysisRecord, error) {
	return GetAnalysesForSnapshot(ctx, snapshotID, limit)
}

func (Store) NextRunNumber(ctx context.Context) (int64, error) {
	return IncrementRunNumber(ctx)
}

func (Store) CurrentRunNumber(ctx context.Context) (int64, error) {
	return GetCurrentRunNumber(ctx)
}
