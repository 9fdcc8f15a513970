package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
)

// JSONStore es un mapa clave → V persistido en un archivo JSON compartido.
// Cada operación lee el archivo bajo lock, así que ve las escrituras que otros
// procesos hayan confirmado antes.
type JSONStore[V any] struct {
	path string
	opts Options
	mu   sync.Mutex
}

// NewJSONStore crea un store sobre path. El archivo se crea en la primera escritura.
func NewJSONStore[V any](path string, opts Options) *JSONStore[V] {
	return &JSONStore[V]{path: path, opts: opts.withDefaults()}
}

// Path devuelve la ruta del archivo.
func (s *JSONStore[V]) Path() string { return s.path }

// Get devuelve el valor de key.
func (s *JSONStore[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	all, err := s.All(ctx)
	if err != nil {
		return zero, false, err
	}
	v, ok := all[key]
	return v, ok, nil
}

// All devuelve una copia de todo el contenido.
func (s *JSONStore[V]) All(ctx context.Context) (map[string]V, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out map[string]V
	err := WithLock(ctx, s.path, s.opts.LockTimeout, func() error {
		var err error
		out, err = s.load(ctx)
		return err
	})
	return out, err
}

// Put escribe key = v.
func (s *JSONStore[V]) Put(ctx context.Context, key string, v V) error {
	return s.Update(ctx, func(m map[string]V) error {
		m[key] = v
		return nil
	})
}

// CompareAndSwap escribe next solo si match acepta el valor actual. Devuelve
// si hubo escritura. Todo ocurre bajo el mismo lock.
func (s *JSONStore[V]) CompareAndSwap(ctx context.Context, key string, match func(current V, present bool) bool, next V) (bool, error) {
	swapped := false
	err := s.Update(ctx, func(m map[string]V) error {
		cur, ok := m[key]
		if !match(cur, ok) {
			return errNoChange
		}
		m[key] = next
		swapped = true
		return nil
	})
	return swapped, err
}

// PutIfAbsent escribe v solo si key no existe y devuelve el valor vigente.
func (s *JSONStore[V]) PutIfAbsent(ctx context.Context, key string, v V) (V, bool, error) {
	var current V
	inserted := false
	err := s.Update(ctx, func(m map[string]V) error {
		if cur, ok := m[key]; ok {
			current = cur
			return errNoChange
		}
		m[key] = v
		current, inserted = v, true
		return nil
	})
	return current, inserted, err
}

// Delete elimina las claves indicadas.
func (s *JSONStore[V]) Delete(ctx context.Context, keys ...string) error {
	return s.Update(ctx, func(m map[string]V) error {
		changed := false
		for _, k := range keys {
			if _, ok := m[k]; ok {
				delete(m, k)
				changed = true
			}
		}
		if !changed {
			return errNoChange
		}
		return nil
	})
}

// Update hace read-modify-write bajo lock. Si fn devuelve error no se escribe.
func (s *JSONStore[V]) Update(ctx context.Context, fn func(map[string]V) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := WithLock(ctx, s.path, s.opts.LockTimeout, func() error {
		m, err := s.load(ctx)
		if err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return err
		}
		return WriteJSON(s.path, m)
	})
	if errors.Is(err, errNoChange) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("filestore.Update: %w", err)
	}
	return nil
}

var errNoChange = errors.New("no change")

func (s *JSONStore[V]) load(ctx context.Context) (map[string]V, error) {
	m := make(map[string]V)
	opts := s.opts
	opts.ReadRetries = -1 // bajo lock el archivo no está a medio reemplazar
	err := ReadJSON(ctx, s.path, &m, opts)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]V), nil
	}
	if errors.Is(err, ErrCorrupt) {
		bad, qerr := Quarantine(s.path)
		if qerr != nil {
			return nil, errors.Join(err, qerr)
		}
		slog.Warn("corrupt store quarantined, starting empty", "path", s.path, "quarantine", bad, "err", err)
		return make(map[string]V), nil
	}
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = make(map[string]V)
	}
	return m, nil
}
