package ports

import (
	"context"

	"github.com/alejandrodnm/sharpline/internal/domain"
)

// SimulationProvider entrega las probabilidades del modelo.
type SimulationProvider interface {
	// FetchEstimates devuelve las estimaciones indexadas por MarketKey.Key().
	FetchEstimates(ctx context.Context) (map[string]domain.ModelEstimate, error)
}
