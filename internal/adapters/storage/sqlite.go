package storage

// sqlite.go: bet log append-only.
//
// Estrategia:
//   - `bets`: UNA fila por apuesta aceptada (first o top-up). Nunca se actualiza.
//   - El stake acumulado por tema se deriva con SUM, no se guarda aparte: el
//     tracker de exposición en disco se reconcilia contra esta tabla.
//   - Prune automático al arrancar: apuestas con más de `retention` de antigüedad.

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/sharpline/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS bets (
    id           TEXT PRIMARY KEY,
    game_id      TEXT     NOT NULL,
    market       TEXT     NOT NULL,
    side         TEXT     NOT NULL,
    theme_key    TEXT     NOT NULL,
    segment      TEXT     NOT NULL,
    entry_type   TEXT     NOT NULL,
    stake        REAL     NOT NULL,
    price        REAL     NOT NULL DEFAULT 0,
    ev_percent   REAL     NOT NULL DEFAULT 0,
    blended_prob REAL     NOT NULL DEFAULT 0,
    source       TEXT     NOT NULL DEFAULT '',
    logged_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bets_logged ON bets(logged_at);
CREATE INDEX IF NOT EXISTS idx_bets_theme  ON bets(theme_key);
CREATE INDEX IF NOT EXISTS idx_bets_key    ON bets(game_id, market, side);
`

const defaultRetention = 30 * 24 * time.Hour

// SQLiteBetLog implementa ports.BetLog usando SQLite (pure Go, sin CGo).
type SQLiteBetLog struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteBetLog abre (o crea) la base de datos en la ruta dada, aplica el
// schema y elimina apuestas más antiguas que retention (0 = 30 días).
func NewSQLiteBetLog(path string, retention time.Duration) (*SQLiteBetLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteBetLog: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteBetLog: busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteBetLog: apply schema: %w", err)
	}

	s := &SQLiteBetLog{db: db, now: time.Now}
	if retention <= 0 {
		retention = defaultRetention
	}
	s.pruneOld(context.Background(), retention)
	return s, nil
}

// Append inserta la apuesta. Asigna ID y timestamp si faltan.
func (s *SQLiteBetLog) Append(ctx context.Context, bet domain.BetRecord) (domain.BetRecord, error) {
	if bet.ID == "" {
		bet.ID = uuid.NewString()
	}
	if bet.LoggedAt.IsZero() {
		bet.LoggedAt = s.now()
	}
	bet.LoggedAt = bet.LoggedAt.UTC()
	if bet.Stake <= 0 {
		return domain.BetRecord{}, fmt.Errorf("storage.Append: non-positive stake %.2f for %s", bet.Stake, bet.Key)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO bets
			(id, game_id, market, side, theme_key, segment, entry_type,
			 stake, price, ev_percent, blended_prob, source, logged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bet.ID,
		bet.Key.GameID,
		bet.Key.Market,
		bet.Key.Side,
		bet.ThemeKey,
		string(bet.Segment),
		string(bet.Entry),
		bet.Stake,
		bet.Price,
		bet.EVPercent,
		bet.BlendedProb,
		bet.Source,
		bet.LoggedAt,
	); err != nil {
		return domain.BetRecord{}, fmt.Errorf("storage.Append: insert %s: %w", bet.Key, err)
	}
	return bet, nil
}

// Bets devuelve las apuestas desde since, en orden de registro.
func (s *SQLiteBetLog) Bets(ctx context.Context, since time.Time) ([]domain.BetRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, game_id, market, side, theme_key, segment, entry_type,
		       stake, price, ev_percent, blended_prob, source, logged_at
		FROM bets
		WHERE logged_at >= ?
		ORDER BY logged_at ASC, rowid ASC
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage.Bets: query: %w", err)
	}
	defer rows.Close()

	var result []domain.BetRecord
	for rows.Next() {
		var (
			b              domain.BetRecord
			segment, entry string
		)
		if err := rows.Scan(
			&b.ID, &b.Key.GameID, &b.Key.Market, &b.Key.Side, &b.ThemeKey,
			&segment, &entry, &b.Stake, &b.Price, &b.EVPercent, &b.BlendedProb,
			&b.Source, &b.LoggedAt,
		); err != nil {
			return nil, fmt.Errorf("storage.Bets: scan: %w", err)
		}
		b.Segment = domain.Segment(segment)
		b.Entry = domain.EntryType(entry)
		result = append(result, b)
	}
	return result, rows.Err()
}

// StakeByTheme suma los stakes por theme key desde since.
func (s *SQLiteBetLog) StakeByTheme(ctx context.Context, since time.Time) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT theme_key, SUM(stake)
		FROM bets
		WHERE logged_at >= ?
		GROUP BY theme_key
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage.StakeByTheme: query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			theme string
			total float64
		)
		if err := rows.Scan(&theme, &total); err != nil {
			return nil, fmt.Errorf("storage.StakeByTheme: scan: %w", err)
		}
		out[theme] = domain.RoundStake(total)
	}
	return out, rows.Err()
}

// Close cierra la base de datos.
func (s *SQLiteBetLog) Close() error {
	return s.db.Close()
}

// pruneOld elimina apuestas fuera de la ventana de retención.
func (s *SQLiteBetLog) pruneOld(ctx context.Context, retention time.Duration) {
	cutoff := s.now().UTC().Add(-retention)
	res, err := s.db.ExecContext(ctx, `DELETE FROM bets WHERE logged_at < ?`, cutoff)
	if err != nil {
		slog.Warn("bet log prune failed", "err", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Info("bet log pruned", "rows", n, "cutoff", cutoff.Format(time.RFC3339))
	}
}
