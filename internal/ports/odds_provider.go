package ports

import (
	"context"

	"github.com/alejandrodnm/sharpline/internal/domain"
)

// OddsProvider obtiene los precios de las casas agrupados por línea de mercado.
type OddsProvider interface {
	// FetchOdds devuelve una MarketLine por (partido, mercado, punto).
	// Datos parciales no son error: las líneas incompletas se devuelven igual
	// y el pricer las trata como no_consensus.
	FetchOdds(ctx context.Context) ([]domain.MarketLine, error)
}
