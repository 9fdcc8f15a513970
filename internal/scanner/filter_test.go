package scanner_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/sharpline/internal/domain"
	"github.com/alejandrodnm/sharpline/internal/scanner"
)

func TestFilter_Apply(t *testing.T) {
	now := time.Date(2025, 7, 19, 16, 0, 0, 0, time.UTC)
	far := totalsLine(-110, -110, 0)
	far.GameID = "2025-07-23-NYY@BOS-T1910"
	h2h := totalsLine(-110, -110, 0)
	h2h.Market = "moneyline"
	empty := domain.MarketLine{GameID: game, Market: "totals"}

	tests := []struct {
		name string
		cfg  scanner.FilterConfig
		in   []domain.MarketLine
		want int
	}{
		{"default keeps today", scanner.DefaultFilterConfig(), []domain.MarketLine{totalsLine(-110, -110, 0)}, 1},
		{"drops far games", scanner.DefaultFilterConfig(), []domain.MarketLine{far}, 0},
		{"drops lines without outcomes", scanner.DefaultFilterConfig(), []domain.MarketLine{empty}, 0},
		{"market allow list", scanner.FilterConfig{Markets: []string{"h2h"}}, []domain.MarketLine{totalsLine(-110, -110, 0), h2h}, 1},
		{"min books", scanner.FilterConfig{MinBooks: 4}, []domain.MarketLine{totalsLine(-110, -110, 0), totalsLine(-110, -110, -105)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scanner.NewFilter(tt.cfg).Apply(tt.in, now)
			assert.Len(t, got, tt.want)
		})
	}
}
