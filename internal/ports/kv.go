package ports

import "context"

// KV es un store clave → valor de un solo escritor por clave, compartido
// entre procesos. Las implementaciones serializan con lock + rename.
type KV[V any] interface {
	Get(ctx context.Context, key string) (V, bool, error)
	Put(ctx context.Context, key string, v V) error
	CompareAndSwap(ctx context.Context, key string, match func(current V, present bool) bool, next V) (bool, error)
	PutIfAbsent(ctx context.Context, key string, v V) (V, bool, error)
	All(ctx context.Context) (map[string]V, error)
	Update(ctx context.Context, fn func(map[string]V) error) error
	Delete(ctx context.Context, keys ...string) error
}
