package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThemeKeyFor(t *testing.T) {
	g := "2025-07-19-NYY@BOS-T1910"

	assert.Equal(t, g+"::Over_total", ThemeKeyFor(NewMarketKey(g, "totals", "Over 8.5")).String())
	assert.Equal(t, g+"::Over_total", ThemeKeyFor(NewMarketKey(g, "team_totals", "NYY Over 4.5")).String())
	assert.Equal(t, g+"::Under_total::1st_5", ThemeKeyFor(NewMarketKey(g, "totals_1st_5_innings", "Under 4.5")).String())
	assert.Equal(t, g+"::NYY_side", ThemeKeyFor(NewMarketKey(g, "h2h", "New York Yankees")).String())
	assert.Equal(t, g+"::NYY_side", ThemeKeyFor(NewMarketKey(g, "spreads", "NYY -1.5")).String())
	assert.Equal(t, g+"::Other_other", ThemeKeyFor(NewMarketKey(g, "player_props", "Judge HR")).String())
}

func TestParseThemeKey(t *testing.T) {
	tk := ParseThemeKey("G1::Under_total::1st_5")
	assert.Equal(t, ThemeKey{GameID: "G1", Theme: "Under_total", Segment: SegmentFirst5}, tk)

	tk = ParseThemeKey("G1::Over_total")
	assert.Equal(t, SegmentFullGame, tk.Segment)
	assert.Equal(t, "G1::Over_total", tk.String())
}
