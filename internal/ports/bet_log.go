package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/sharpline/internal/domain"
)

// BetLog es el registro append-only de apuestas confirmadas. Es la verdad
// contra la que se reconcilia el tracker de exposición.
type BetLog interface {
	// Append registra una apuesta aceptada y devuelve el registro con su ID.
	Append(ctx context.Context, bet domain.BetRecord) (domain.BetRecord, error)

	// Bets devuelve las apuestas registradas desde since, en orden de registro.
	Bets(ctx context.Context, since time.Time) ([]domain.BetRecord, error)

	// StakeByTheme devuelve el stake acumulado por theme key desde since.
	StakeByTheme(ctx context.Context, since time.Time) (map[string]float64, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
