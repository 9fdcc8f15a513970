package simfile_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/sharpline/internal/adapters/filestore"
	"github.com/alejandrodnm/sharpline/internal/adapters/simfile"
	"github.com/alejandrodnm/sharpline/internal/domain"
)

func write(t *testing.T, dir, name, content string, mod time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestReader_FetchEstimates(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 7, 19, 12, 0, 0, 0, time.UTC)

	write(t, dir, "morning.json", `{
		"2025-07-19-NYY@BOS-T1939": {"markets": [
			{"market": "totals", "side": "Over 8.5", "sim_prob": 0.52, "fair_odds": -108},
			{"market": "h2h", "side": "New York Yankees", "sim_prob": 0.58, "fair_odds": -138}
		]},
		"2025-07-19-LAD@SF-T2215": {"markets": [
			{"market": "totals", "side": "under 7.5", "sim_prob": 0.55, "fair_odds": -122},
			{"market": "totals", "side": "Over 7.5", "sim_prob": 1.2, "fair_odds": 0}
		]}
	}`, base)
	write(t, dir, "afternoon.json", `{
		"2025-07-19-NYY@BOS-T1940": {"markets": [
			{"market": "totals", "side": "Over 8.5", "sim_prob": 0.56, "fair_odds": -127}
		]}
	}`, base.Add(time.Hour))
	write(t, dir, "broken.json", `{"2025-07-19`, base.Add(2*time.Hour))
	write(t, dir, "notes.txt", `ignored`, base)

	got, err := simfile.NewReader(dir, filestore.Options{ReadRetries: -1}).FetchEstimates(context.Background())
	require.NoError(t, err)

	over := domain.NewMarketKey("2025-07-19-NYY@BOS-T1940", "totals", "Over 8.5")
	assert.Equal(t, domain.ModelEstimate{SimProb: 0.56, FairOdds: -127}, got[over.Key()])

	// El archivo más nuevo reemplaza el partido completo.
	h2h := domain.NewMarketKey("2025-07-19-NYY@BOS-T1940", "h2h", "NYY")
	assert.NotContains(t, got, h2h.Key())

	under := domain.NewMarketKey("2025-07-19-LAD@SF-T2215", "totals", "Under 7.5")
	assert.Equal(t, 0.55, got[under.Key()].SimProb)
	assert.Len(t, got, 2)
}

func TestReader_EmptyDir(t *testing.T) {
	got, err := simfile.NewReader(t.TempDir(), filestore.Options{}).FetchEstimates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}
