package oddsapi

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/alejandrodnm/sharpline/internal/domain"
)

// mapEvents agrupa las cotizaciones por (partido, mercado, línea): cada
// grupo contiene los lados complementarios que se de-vigean juntos.
func mapEvents(events []event) []domain.MarketLine {
	var lines []domain.MarketLine
	for _, ev := range events {
		gameID := domain.FormatGameID(ev.CommenceTime, ev.AwayTeam, ev.HomeTeam)
		if _, err := domain.ParseGameID(gameID); err != nil {
			slog.Debug("skipping event with unknown teams",
				"event_id", ev.ID, "away", ev.AwayTeam, "home", ev.HomeTeam)
			continue
		}
		lines = append(lines, mapEvent(ev, gameID)...)
	}
	return lines
}

func mapEvent(ev event, gameID string) []domain.MarketLine {
	type group struct {
		line  domain.MarketLine
		sides map[string]int
	}
	groups := make(map[string]*group)
	var order []string

	for _, bm := range ev.Bookmakers {
		for _, m := range bm.Markets {
			marketKey := domain.NormalizeMarket(m.Key)
			for _, o := range m.Outcomes {
				if !domain.ValidPrice(o.Price) {
					continue
				}
				gk, point := groupKey(marketKey, o, ev.HomeTeam)
				g, ok := groups[gk]
				if !ok {
					g = &group{
						line: domain.MarketLine{
							GameID:       gameID,
							Market:       marketKey,
							Point:        point,
							CommenceTime: ev.CommenceTime,
						},
						sides: make(map[string]int),
					}
					groups[gk] = g
					order = append(order, gk)
				}
				side := domain.NormalizeSide(sideLabel(marketKey, o))
				idx, ok := g.sides[side]
				if !ok {
					idx = len(g.line.Outcomes)
					g.sides[side] = idx
					g.line.Outcomes = append(g.line.Outcomes, domain.Outcome{Side: side})
				}
				g.line.Outcomes[idx].Quotes = append(g.line.Outcomes[idx].Quotes,
					domain.BookQuote{Book: bm.Key, Price: o.Price})
			}
		}
	}

	sort.Strings(order)
	lines := make([]domain.MarketLine, 0, len(order))
	for _, gk := range order {
		lines = append(lines, groups[gk].line)
	}
	return lines
}

// groupKey identifica el conjunto complementario de un outcome. Los spreads
// se agrupan por el punto con signo del local: "BOS -1.5" va con "NYY +1.5"
// y nunca con "NYY -1.5", aunque una casa cotice ambas alternativas. Los
// team totals se agrupan además por equipo.
func groupKey(marketKey string, o outcome, homeTeam string) (string, float64) {
	var point float64
	if o.Point != nil {
		point = *o.Point
	}
	switch domain.FamilyOf(marketKey) {
	case domain.FamilySpread:
		if point != 0 && teamLabel(o.Name) != teamLabel(homeTeam) {
			point = -point
		}
		return marketKey + "|home" + signedPoint(point), point
	case domain.FamilyTeamTotal:
		return fmt.Sprintf("%s|%s|%s", marketKey, teamLabel(o.Description), formatPoint(point)), point
	case domain.FamilyH2H:
		return marketKey, 0
	}
	return marketKey + "|" + formatPoint(point), point
}

// sideLabel construye el lado con su punto: "Over 8.5", "NYY -1.5",
// "NYY Over 4.5" o "NYY".
func sideLabel(marketKey string, o outcome) string {
	name := strings.TrimSpace(o.Name)
	switch domain.FamilyOf(marketKey) {
	case domain.FamilyH2H:
		return teamLabel(name)
	case domain.FamilySpread:
		if o.Point == nil {
			return teamLabel(name)
		}
		return teamLabel(name) + " " + signedPoint(*o.Point)
	case domain.FamilyTeamTotal:
		label := teamLabel(o.Description) + " " + name
		if o.Point != nil {
			label += " " + formatPoint(*o.Point)
		}
		return label
	}
	if o.Point != nil {
		return name + " " + formatPoint(*o.Point)
	}
	return name
}

func teamLabel(name string) string {
	if code, ok := domain.TeamCode(name); ok {
		return code
	}
	return strings.TrimSpace(name)
}

func formatPoint(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func signedPoint(p float64) string {
	if p > 0 {
		return "+" + formatPoint(p)
	}
	return formatPoint(p)
}
