// Package filestore implementa el protocolo de archivos compartidos entre
// procesos: lock advisory + escritura temporal + validación + rename atómico.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

var (
	// ErrLockTimeout se devuelve cuando otro proceso retiene el lock más allá del timeout.
	ErrLockTimeout = errors.New("filestore: lock timeout")
	// ErrCorrupt se devuelve cuando un archivo no parsea como JSON.
	ErrCorrupt = errors.New("filestore: corrupt file")
)

const (
	defaultLockTimeout = 5 * time.Second
	lockRetryDelay     = 25 * time.Millisecond
	defaultReadRetries = 3
	defaultRetryWait   = 50 * time.Millisecond
)

// Options controla timeouts y reintentos.
type Options struct {
	LockTimeout time.Duration
	ReadRetries int
	RetryWait   time.Duration
}

func (o Options) withDefaults() Options {
	if o.LockTimeout <= 0 {
		o.LockTimeout = defaultLockTimeout
	}
	if o.ReadRetries < 0 {
		o.ReadRetries = 0
	} else if o.ReadRetries == 0 {
		o.ReadRetries = defaultReadRetries
	}
	if o.RetryWait <= 0 {
		o.RetryWait = defaultRetryWait
	}
	return o
}

// WithLock ejecuta fn con el lock advisory de path tomado (archivo path+".lock").
func WithLock(ctx context.Context, path string, timeout time.Duration, fn func() error) error {
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("filestore.WithLock: mkdir: %w", err)
	}

	lock := flock.New(path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("filestore.WithLock: %s: %w", path, ErrLockTimeout)
		}
		return fmt.Errorf("filestore.WithLock: %s: %w", path, err)
	}
	if !ok {
		return fmt.Errorf("filestore.WithLock: %s: %w", path, ErrLockTimeout)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("filestore unlock failed", "path", path, "err", err)
		}
	}()

	return fn()
}

// WriteJSON serializa v y lo escribe de forma atómica: archivo temporal en el
// mismo directorio, fsync, relectura y validación, y rename. Si la relectura
// no valida, el temporal se mueve a *.bad.json y el archivo bueno no se toca.
// No toma el lock: el llamador debe usar WithLock.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore.WriteJSON: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("filestore.WriteJSON: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("filestore.WriteJSON: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("filestore.WriteJSON: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("filestore.WriteJSON: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore.WriteJSON: close temp: %w", err)
	}

	if err := validate(tmpName, len(data)); err != nil {
		bad := quarantinePath(path)
		if rerr := os.Rename(tmpName, bad); rerr != nil {
			os.Remove(tmpName)
		}
		slog.Error("snapshot write failed validation, quarantined",
			"path", path,
			"quarantine", bad,
			"err", err,
		)
		return fmt.Errorf("filestore.WriteJSON: validate %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore.WriteJSON: rename: %w", err)
	}
	return nil
}

// ReadJSON lee path y lo decodifica en out. Reintenta mientras el archivo no
// exista (otro proceso puede estar reemplazándolo). Tras los reintentos
// devuelve un error que envuelve fs.ErrNotExist.
func ReadJSON(ctx context.Context, path string, out any, opts Options) error {
	opts = opts.withDefaults()

	var data []byte
	var err error
	for attempt := 0; attempt <= opts.ReadRetries; attempt++ {
		data, err = os.ReadFile(path)
		if err == nil || !errors.Is(err, fs.ErrNotExist) {
			break
		}
		if attempt == opts.ReadRetries {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("filestore.ReadJSON: %w", ctx.Err())
		case <-time.After(opts.RetryWait):
		}
	}
	if err != nil {
		return fmt.Errorf("filestore.ReadJSON: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return fmt.Errorf("filestore.ReadJSON: %s is empty: %w", path, ErrCorrupt)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("filestore.ReadJSON: parse %s: %w (%v)", path, ErrCorrupt, err)
	}
	return nil
}

func validate(path string, size int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) != size {
		return fmt.Errorf("%w: short write %d/%d bytes", ErrCorrupt, len(data), size)
	}
	if !json.Valid(data) {
		return ErrCorrupt
	}
	return nil
}

// Quarantine mueve un archivo corrupto a *.bad.json para que el siguiente
// lector empiece vacío. Devuelve la ruta de destino.
func Quarantine(path string) (string, error) {
	bad := quarantinePath(path)
	if err := os.Rename(path, bad); err != nil {
		return "", fmt.Errorf("filestore.Quarantine: %w", err)
	}
	return bad, nil
}

func quarantinePath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".bad.json"
}
