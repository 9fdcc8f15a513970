package ports

import (
	"context"

	"github.com/alejandrodnm/sharpline/internal/domain"
)

// Dispatcher consume las filas del snapshot ya persistido.
type Dispatcher interface {
	Dispatch(ctx context.Context, rows []domain.SnapshotRow) error
}
