package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata" // America/New_York sin depender del sistema
)

// MarketKey es la identidad canónica (partido, mercado, lado) de una apuesta.
// Siempre se construye con NewMarketKey para que las búsquedas sean estables.
type MarketKey struct {
	GameID string
	Market string
	Side   string
}

// NewMarketKey normaliza los tres componentes y devuelve la clave canónica.
func NewMarketKey(gameID, market, side string) MarketKey {
	return MarketKey{
		GameID: CanonicalGameID(gameID),
		Market: NormalizeMarket(market),
		Side:   NormalizeSide(side),
	}
}

// Key renderiza la clave como "game:market:side", usada en mapas y archivos.
func (k MarketKey) Key() string {
	return k.GameID + ":" + k.Market + ":" + k.Side
}

func (k MarketKey) String() string { return k.Key() }

// ParseMarketKey hace el camino inverso de Key.
func ParseMarketKey(s string) (MarketKey, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return MarketKey{}, fmt.Errorf("domain.ParseMarketKey: malformed key %q", s)
	}
	return NewMarketKey(parts[0], parts[1], parts[2]), nil
}

// Class devuelve si el mercado es línea principal o alternativa.
func (k MarketKey) Class() MarketClass { return ClassOf(k.Market) }

// Segment devuelve el segmento del partido al que aplica el mercado.
func (k MarketKey) Segment() Segment { return SegmentOf(k.Market) }

// ---------------------------------------------------------------------------
// Game ID: YYYY-MM-DD-AWAY@HOME[-THHMM]

// GameID es la forma parseada de un identificador de partido.
type GameID struct {
	Date  string // YYYY-MM-DD
	Away  string
	Home  string
	Start string // HHMM en hora del Este, vacío si no se conoce
}

var gameIDPattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-([A-Za-z]+)@([A-Za-z]+)(?:-T(\d{4}))?$`)

var eastern = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("domain: load location %s: %v", name, err))
	}
	return loc
}

// ParseGameID descompone un game id. Los códigos de equipo se canonicalizan
// y la hora de inicio se redondea a los 5 minutos más cercanos.
func ParseGameID(id string) (GameID, error) {
	m := gameIDPattern.FindStringSubmatch(strings.TrimSpace(id))
	if m == nil {
		return GameID{}, fmt.Errorf("domain.ParseGameID: malformed game id %q", id)
	}
	g := GameID{Date: m[1], Away: canonicalTeam(m[2]), Home: canonicalTeam(m[3])}
	if m[4] != "" {
		g.Start = roundStart(m[4])
	}
	return g, nil
}

// String renderiza el game id canónico.
func (g GameID) String() string {
	s := g.Date + "-" + g.Away + "@" + g.Home
	if g.Start != "" {
		s += "-T" + g.Start
	}
	return s
}

// StartTime devuelve la hora de inicio programada. Sin hora explícita
// devuelve el final del día (hora del Este), que es el caso conservador.
func (g GameID) StartTime() (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", g.Date, eastern)
	if err != nil {
		return time.Time{}, fmt.Errorf("domain.GameID.StartTime: parse date: %w", err)
	}
	if g.Start == "" {
		return day.Add(23*time.Hour + 59*time.Minute), nil
	}
	hh := int(g.Start[0]-'0')*10 + int(g.Start[1]-'0')
	mm := int(g.Start[2]-'0')*10 + int(g.Start[3]-'0')
	return day.Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute), nil
}

// FormatGameID construye el game id canónico a partir del inicio y los equipos.
func FormatGameID(start time.Time, away, home string) string {
	local := start.In(eastern)
	g := GameID{
		Date:  local.Format("2006-01-02"),
		Away:  canonicalTeam(away),
		Home:  canonicalTeam(home),
		Start: roundStart(local.Format("1504")),
	}
	return g.String()
}

// CanonicalGameID normaliza un game id. Si no se puede parsear se devuelve
// tal cual (recortado) para no perder la fila.
func CanonicalGameID(id string) string {
	g, err := ParseGameID(id)
	if err != nil {
		return strings.TrimSpace(id)
	}
	return g.String()
}

// HoursToGame devuelve las horas que faltan hasta el inicio del partido.
// Negativo si ya empezó.
func HoursToGame(gameID string, now time.Time) (float64, error) {
	g, err := ParseGameID(gameID)
	if err != nil {
		return 0, err
	}
	start, err := g.StartTime()
	if err != nil {
		return 0, err
	}
	return start.Sub(now).Hours(), nil
}

func canonicalTeam(s string) string {
	if code, ok := TeamCode(s); ok {
		return code
	}
	return strings.ToUpper(s)
}

// roundStart redondea HHMM a múltiplos de 5 minutos (T1939 → T1940).
func roundStart(hhmm string) string {
	if len(hhmm) != 4 {
		return hhmm
	}
	hh := int(hhmm[0]-'0')*10 + int(hhmm[1]-'0')
	mm := int(hhmm[2]-'0')*10 + int(hhmm[3]-'0')
	total := hh*60 + mm
	total = (total + 2) / 5 * 5
	if total >= 24*60 {
		total = 24*60 - 5
	}
	return fmt.Sprintf("%02d%02d", total/60, total%60)
}

// ---------------------------------------------------------------------------
// Mercado y lado

// NormalizeMarket pasa el nombre del mercado a minúsculas y sin espacios.
// El prefijo "alternate_" se conserva: una línea alternativa es otro mercado.
func NormalizeMarket(market string) string {
	m := strings.ToLower(strings.TrimSpace(market))
	m = strings.ReplaceAll(m, " ", "_")
	switch m {
	case "moneyline":
		return "h2h"
	case "runline", "run_line":
		return "spreads"
	}
	return m
}

// BaseMarket devuelve el mercado sin el prefijo "alternate_".
func BaseMarket(market string) string {
	return strings.TrimPrefix(NormalizeMarket(market), "alternate_")
}

// NormalizeSide colapsa espacios, capitaliza Over/Under y reemplaza nombres
// completos de equipo por su abreviatura canónica.
func NormalizeSide(side string) string {
	side = strings.Join(strings.Fields(side), " ")
	if side == "" {
		return side
	}
	if abbr, rest, ok := teamPrefix(side); ok {
		if rest == "" {
			return abbr
		}
		return abbr + " " + rest
	}
	tokens := strings.Fields(side)
	for i, tok := range tokens {
		switch strings.ToLower(tok) {
		case "over":
			tokens[i] = "Over"
		case "under":
			tokens[i] = "Under"
		default:
			if code, ok := TeamCode(tok); ok && len(tok) <= 3 {
				tokens[i] = code
			}
		}
	}
	return strings.Join(tokens, " ")
}

// MarketClass distingue líneas principales de alternativas.
type MarketClass string

const (
	ClassMain      MarketClass = "main"
	ClassAlternate MarketClass = "alternate"
)

// ClassOf clasifica un mercado por su prefijo.
func ClassOf(market string) MarketClass {
	if strings.HasPrefix(NormalizeMarket(market), "alternate_") {
		return ClassAlternate
	}
	return ClassMain
}

// Segment es la porción del partido a la que aplica un mercado.
type Segment string

const (
	SegmentFullGame Segment = "full_game"
	SegmentFirst    Segment = "1st"
	SegmentFirst3   Segment = "1st_3"
	SegmentFirst5   Segment = "1st_5"
	SegmentFirst7   Segment = "1st_7"
)

// SegmentOf deriva el segmento a partir del nombre del mercado.
func SegmentOf(market string) Segment {
	m := NormalizeMarket(market)
	switch {
	case strings.Contains(m, "1st_3"):
		return SegmentFirst3
	case strings.Contains(m, "1st_5"):
		return SegmentFirst5
	case strings.Contains(m, "1st_7"):
		return SegmentFirst7
	case strings.Contains(m, "1st_1"), strings.Contains(m, "1st_inning"):
		return SegmentFirst
	}
	return SegmentFullGame
}

// Family agrupa mercados por tipo de apuesta.
type Family string

const (
	FamilyTotal     Family = "total"
	FamilyTeamTotal Family = "team_total"
	FamilySpread    Family = "spread"
	FamilyH2H       Family = "h2h"
	FamilyOther     Family = "other"
)

// FamilyOf clasifica el mercado base.
func FamilyOf(market string) Family {
	base := BaseMarket(market)
	switch {
	case strings.HasPrefix(base, "team_totals"):
		return FamilyTeamTotal
	case strings.HasPrefix(base, "totals"):
		return FamilyTotal
	case strings.HasPrefix(base, "spreads"), strings.HasPrefix(base, "runline"):
		return FamilySpread
	case strings.HasPrefix(base, "h2h"):
		return FamilyH2H
	}
	return FamilyOther
}

// LowLiquidity indica segmentos derivados con poca liquidez:
// primeras 3 y 7 entradas y totales por equipo.
func LowLiquidity(market string) bool {
	seg := SegmentOf(market)
	return seg == SegmentFirst3 || seg == SegmentFirst7 || FamilyOf(market) == FamilyTeamTotal
}
