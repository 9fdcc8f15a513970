package notify

import (
	"context"
	"errors"

	"github.com/alejandrodnm/sharpline/internal/domain"
	"github.com/alejandrodnm/sharpline/internal/ports"
)

// Multi reparte las filas a varios dispatchers. Un fallo no corta al resto.
type Multi []ports.Dispatcher

// Dispatch llama a todos y devuelve los errores unidos.
func (m Multi) Dispatch(ctx context.Context, rows []domain.SnapshotRow) error {
	var errs []error
	for _, d := range m {
		if d == nil {
			continue
		}
		if err := d.Dispatch(ctx, rows); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
