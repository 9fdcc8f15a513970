package scanner

import (
	"strings"
	"time"

	"github.com/alejandrodnm/sharpline/internal/domain"
)

// FilterConfig contiene los parámetros configurables de filtrado de líneas.
type FilterConfig struct {
	// Markets limita los mercados evaluados (vacío = todos).
	Markets []string
	// MaxHoursToGame descarta partidos demasiado lejanos.
	MaxHoursToGame float64
	// MinBooks descarta líneas con menos casas cotizando el lado más líquido.
	MinBooks int
}

// DefaultFilterConfig devuelve una configuración de filtrado permisiva.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MaxHoursToGame: 48,
		MinBooks:       0,
	}
}

// Filter decide qué líneas de mercado entran al ciclo de evaluación.
type Filter struct {
	cfg     FilterConfig
	markets map[string]bool
}

// NewFilter crea un Filter con la configuración dada.
func NewFilter(cfg FilterConfig) *Filter {
	f := &Filter{cfg: cfg}
	if len(cfg.Markets) > 0 {
		f.markets = make(map[string]bool, len(cfg.Markets))
		for _, m := range cfg.Markets {
			f.markets[domain.NormalizeMarket(m)] = true
		}
	}
	return f
}

// Apply devuelve las líneas que pasan todos los filtros.
func (f *Filter) Apply(lines []domain.MarketLine, now time.Time) []domain.MarketLine {
	result := make([]domain.MarketLine, 0, len(lines))
	for _, line := range lines {
		if f.passes(line, now) {
			result = append(result, line)
		}
	}
	return result
}

// passes devuelve true si la línea supera todos los criterios.
// Los partidos ya empezados pasan: el motor los marca game_started.
func (f *Filter) passes(line domain.MarketLine, now time.Time) bool {
	if strings.TrimSpace(line.GameID) == "" || len(line.Outcomes) == 0 {
		return false
	}
	if f.markets != nil && !f.markets[domain.NormalizeMarket(line.Market)] {
		return false
	}
	if f.cfg.MaxHoursToGame > 0 {
		if h, err := domain.HoursToGame(line.GameID, now); err == nil && h > f.cfg.MaxHoursToGame {
			return false
		}
	}
	if f.cfg.MinBooks > 0 && maxBooks(line) < f.cfg.MinBooks {
		return false
	}
	return true
}

func maxBooks(line domain.MarketLine) int {
	best := 0
	for _, o := range line.Outcomes {
		if len(o.Quotes) > best {
			best = len(o.Quotes)
		}
	}
	return best
}
