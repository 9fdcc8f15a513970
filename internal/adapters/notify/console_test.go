package notify_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/sharpline/internal/adapters/notify"
	"github.com/alejandrodnm/sharpline/internal/decision"
	"github.com/alejandrodnm/sharpline/internal/domain"
)

func makeRow(side string, ev float64, roles ...domain.Role) domain.SnapshotRow {
	return domain.SnapshotRow{
		GameID:        "2025-07-19-NYY@BOS-T1910",
		Market:        "totals",
		Side:          side,
		BestBook:      "fanduel",
		Price:         -110,
		ConsensusProb: 0.5,
		BlendedProb:   0.554,
		EVPercent:     ev,
		Movement:      0.0217,
		RequiredMove:  0.0029,
		HoursToGame:   7.1,
		Roles:         roles,
		Visible:       true,
	}
}

func TestConsole_Dispatch_Compact(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	accepted := makeRow("Over", 5.8)
	accepted.Accepted, accepted.Logged = true, true
	accepted.EntryType, accepted.Stake = domain.EntryFirst, 1.59
	skipped := makeRow("Under", -9)
	skipped.SkipReason = domain.SkipLowEV

	require.NoError(t, c.Dispatch(context.Background(), []domain.SnapshotRow{skipped, accepted}))

	out := buf.String()
	assert.Contains(t, out, "2 rows → acc:1 logged:1 deferred:0")
	assert.Contains(t, out, "NYY@BOS 19:10 totals Over -110")
	assert.Contains(t, out, "first 1.59u ✓")
	assert.Contains(t, out, "low_ev")
}

func TestConsole_Dispatch_TableGroupsByRole(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, true)

	deferred := makeRow("Over", 7.7, domain.RoleBestBookMain, domain.RoleLive)
	deferred.SkipReason, deferred.Deferred, deferred.PendingDelta = domain.SkipLowTopup, true, 0.45

	require.NoError(t, c.Dispatch(context.Background(), []domain.SnapshotRow{deferred, makeRow("Under", 1)}))

	out := buf.String()
	assert.Contains(t, out, "== best_book_main (1) ==")
	assert.Contains(t, out, "== live (1) ==")
	assert.Contains(t, out, "== other (1) ==")
	assert.Contains(t, out, "low_topup +0.45u")
	assert.NotContains(t, out, "== fv_drop")
}

func TestConsole_Dispatch_Empty(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, c.Dispatch(context.Background(), nil))
	assert.Contains(t, buf.String(), "no visible rows")
}

func TestConsole_PrintThresholds(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, true)

	c.PrintThresholds(decision.NewEngine(decision.DefaultPolicy()), []string{"totals"}, []float64{6, 30}, 5.5)

	out := buf.String()
	assert.Contains(t, out, "REQUIRED MOVE (EV 5.5%)")
	// 0.0045 × 1 × 1.6 (una casa) × 0.5 × 1.25
	assert.Contains(t, out, "0.0045")
	assert.Contains(t, out, "0.0028")
	assert.Contains(t, out, "Odds band [-150, +200]")
}

// --- multi ---

type recordingDispatcher struct {
	calls int
	err   error
}

func (r *recordingDispatcher) Dispatch(_ context.Context, _ []domain.SnapshotRow) error {
	r.calls++
	return r.err
}

func TestMulti_Dispatch(t *testing.T) {
	failing := &recordingDispatcher{err: errors.New("redis down")}
	ok := &recordingDispatcher{}

	err := notify.Multi{failing, nil, ok}.Dispatch(context.Background(), []domain.SnapshotRow{makeRow("Over", 1)})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls, "a failing dispatcher does not stop the rest")
}
