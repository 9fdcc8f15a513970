package domain

import "strings"

// ThemeKey agrupa apuestas correlacionadas dentro de un partido:
// (partido, tema, segmento). El tema combina la dirección (Over/Under o
// equipo) con la familia de mercado.
type ThemeKey struct {
	GameID  string
	Theme   string
	Segment Segment
}

// String renderiza "game::theme" o "game::theme::segment". El segmento
// full_game se omite.
func (t ThemeKey) String() string {
	if t.Segment == "" || t.Segment == SegmentFullGame {
		return t.GameID + "::" + t.Theme
	}
	return t.GameID + "::" + t.Theme + "::" + string(t.Segment)
}

// ParseThemeKey hace el camino inverso de String.
func ParseThemeKey(s string) ThemeKey {
	parts := strings.SplitN(s, "::", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	seg := Segment(parts[2])
	if seg == "" {
		seg = SegmentFullGame
	}
	return ThemeKey{GameID: parts[0], Theme: parts[1], Segment: seg}
}

// ThemeKeyFor deriva la clave de exposición de una MarketKey.
func ThemeKeyFor(k MarketKey) ThemeKey {
	return ThemeKey{
		GameID:  k.GameID,
		Theme:   Theme(k.Market, k.Side) + "_" + themeFamily(k.Market),
		Segment: SegmentOf(k.Market),
	}
}

// Theme devuelve la dirección de riesgo de un lado: "Over"/"Under" para
// totales, la abreviatura del equipo para h2h y spreads, u "Other".
func Theme(market, side string) string {
	side = NormalizeSide(side)
	tokens := strings.Fields(side)
	fam := FamilyOf(market)

	if fam == FamilyTeamTotal {
		for _, tok := range tokens {
			if tok == "Over" || tok == "Under" {
				return tok
			}
		}
	}
	if strings.HasPrefix(side, "Over") {
		return "Over"
	}
	if strings.HasPrefix(side, "Under") {
		return "Under"
	}
	if (fam == FamilyH2H || fam == FamilySpread) && len(tokens) > 0 {
		first := strings.TrimRight(tokens[0], "+-0123456789.")
		if code, ok := TeamCode(first); ok {
			return code
		}
	}
	return "Other"
}

// themeFamily une moneyline y spread del mismo equipo en una sola familia
// ("side"); totales y totales por equipo comparten "total".
func themeFamily(market string) string {
	switch FamilyOf(market) {
	case FamilyTotal, FamilyTeamTotal:
		return "total"
	case FamilySpread, FamilyH2H:
		return "side"
	}
	return "other"
}
