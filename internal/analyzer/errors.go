package analyzer

import (
	"errors"
	"fmt"

	"github.com/elys-network/curate/internal/types"
)

var ErrInvalidInput = errors.New("invalid input")
var ErrInvalidPoolData = errors.New("invalid pool data")
var ErrInvalidEngineParameters = errors.New("invalid engine parameters")
var ErrInsufficientCandidates = errors.New("insufficient candidates")
var ErrInsufficientData = errors.New("insufficient data points to calculate market distribution")

// InsufficientCandidatesError is returned by OptimizePortfolio when no pool satisfies
// the tolerance ceiling. Callers can retry with relaxed constraints.
type InsufficientCandidatesError struct {
	RiskTolerance   types.RiskTolerance
	Diversification types.Diversification
	Ceiling         int
	Target          int
	Available       int
}

func (e *InsufficientCandidatesError) Error() string {
	return fmt.Sprintf("%s: %d pools qualify at %s tolerance (risk ceiling %d), %s diversification needs %d",
		ErrInsufficientCandidates, e.Available, e.RiskTolerance, e.Ceiling, e.Diversification, e.Target)
}

func (e *InsufficientCandidatesError) Unwrap() error {
	return ErrInsufficientCandidates
}
