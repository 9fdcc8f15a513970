package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alejandrodnm/sharpline/internal/domain"
)

const unassignedStream = "unassigned"

// streamAdder es el subconjunto de *redis.Client que usa RedisStream.
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStream publica cada fila visible en un stream por rol
// ("<prefix>.<role>"). Las filas sin rol van a "<prefix>.unassigned".
type RedisStream struct {
	client streamAdder
	prefix string
	maxLen int64
}

// NewRedisStream crea el dispatcher sobre un cliente Redis.
func NewRedisStream(client *redis.Client, prefix string, maxLen int64) *RedisStream {
	return newRedisStream(client, prefix, maxLen)
}

func newRedisStream(client streamAdder, prefix string, maxLen int64) *RedisStream {
	if prefix == "" {
		prefix = "snapshot.rows"
	}
	return &RedisStream{client: client, prefix: prefix, maxLen: maxLen}
}

// Dispatch publica las filas. Corta en el primer error.
func (p *RedisStream) Dispatch(ctx context.Context, rows []domain.SnapshotRow) error {
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("notify.RedisStream.Dispatch: marshal %s: %w", row.Key(), err)
		}

		roles := make([]string, 0, len(row.Roles))
		for _, r := range row.Roles {
			roles = append(roles, string(r))
		}
		if len(roles) == 0 {
			roles = append(roles, unassignedStream)
		}

		for _, role := range roles {
			args := &redis.XAddArgs{
				Stream: p.prefix + "." + role,
				Values: map[string]interface{}{
					"data":        string(data),
					"key":         row.Key().Key(),
					"game_id":     row.GameID,
					"skip_reason": string(row.SkipReason),
					"accepted":    row.Accepted,
				},
			}
			if p.maxLen > 0 {
				args.MaxLen = p.maxLen
				args.Approx = true
			}
			if err := p.client.XAdd(ctx, args).Err(); err != nil {
				return fmt.Errorf("notify.RedisStream.Dispatch: xadd %s: %w", args.Stream, err)
			}
		}
	}
	return nil
}
