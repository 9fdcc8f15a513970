// Package simfile lee las salidas del motor de simulación desde un directorio.
//
// Cada archivo *.json tiene la forma:
//
//	{"2025-07-19-NYY@BOS-T1910": {"markets": [
//	    {"market": "totals", "side": "Over 8.5", "sim_prob": 0.56, "fair_odds": -127}
//	]}}
//
// Si dos archivos traen el mismo partido gana el más reciente.
package simfile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/alejandrodnm/sharpline/internal/adapters/filestore"
	"github.com/alejandrodnm/sharpline/internal/domain"
)

type gameFile map[string]struct {
	Markets []struct {
		Market   string  `json:"market"`
		Side     string  `json:"side"`
		SimProb  float64 `json:"sim_prob"`
		FairOdds float64 `json:"fair_odds"`
	} `json:"markets"`
}

// Reader implementa ports.SimulationProvider sobre un directorio.
type Reader struct {
	dir  string
	opts filestore.Options
}

// NewReader crea un Reader sobre dir.
func NewReader(dir string, opts filestore.Options) *Reader {
	return &Reader{dir: dir, opts: opts}
}

// FetchEstimates devuelve las estimaciones indexadas por MarketKey.Key().
// Los archivos corruptos se saltan con un warning.
func (r *Reader) FetchEstimates(ctx context.Context) (map[string]domain.ModelEstimate, error) {
	files, err := r.files()
	if err != nil {
		return nil, fmt.Errorf("simfile.FetchEstimates: %w", err)
	}

	latest := make(map[string]map[string]domain.ModelEstimate)
	for _, path := range files {
		var doc gameFile
		if err := filestore.ReadJSON(ctx, path, &doc, r.opts); err != nil {
			if errors.Is(err, filestore.ErrCorrupt) {
				slog.Warn("skipping unreadable simulation file", "path", path, "err", err)
				continue
			}
			return nil, fmt.Errorf("simfile.FetchEstimates: %w", err)
		}
		for gameID, g := range doc {
			estimates := make(map[string]domain.ModelEstimate, len(g.Markets))
			for _, m := range g.Markets {
				if m.SimProb <= 0 || m.SimProb >= 1 {
					slog.Debug("skipping simulation with invalid prob",
						"game_id", gameID, "market", m.Market, "side", m.Side, "sim_prob", m.SimProb)
					continue
				}
				key := domain.NewMarketKey(gameID, m.Market, m.Side)
				estimates[key.Key()] = domain.ModelEstimate{SimProb: m.SimProb, FairOdds: m.FairOdds}
			}
			latest[domain.CanonicalGameID(gameID)] = estimates
		}
	}

	out := make(map[string]domain.ModelEstimate)
	for _, estimates := range latest {
		for k, v := range estimates {
			out[k] = v
		}
	}
	return out, nil
}

// files devuelve los *.json del directorio, del más viejo al más nuevo.
func (r *Reader) files() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(r.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	type entry struct {
		path string
		mod  time.Time
	}
	entries := make([]entry, 0, len(paths))
	for _, p := range paths {
		if filepath.Ext(p[:len(p)-len(".json")]) == ".bad" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		entries = append(entries, entry{path: p, mod: info.ModTime()})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].mod.Equal(entries[j].mod) {
			return entries[i].path < entries[j].path
		}
		return entries[i].mod.Before(entries[j].mod)
	})
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.path
	}
	return out, nil
}
