package domain

import "strings"

// teamNames mapea nombre completo → abreviatura canónica.
var teamNames = map[string]string{
	"Arizona Diamondbacks":  "ARI",
	"Atlanta Braves":        "ATL",
	"Baltimore Orioles":     "BAL",
	"Boston Red Sox":        "BOS",
	"Chicago Cubs":          "CHC",
	"Chicago White Sox":     "CWS",
	"Cincinnati Reds":       "CIN",
	"Cleveland Guardians":   "CLE",
	"Colorado Rockies":      "COL",
	"Detroit Tigers":        "DET",
	"Houston Astros":        "HOU",
	"Kansas City Royals":    "KC",
	"Los Angeles Angels":    "LAA",
	"Los Angeles Dodgers":   "LAD",
	"Miami Marlins":         "MIA",
	"Milwaukee Brewers":     "MIL",
	"Minnesota Twins":       "MIN",
	"New York Mets":         "NYM",
	"New York Yankees":      "NYY",
	"Oakland Athletics":     "OAK",
	"Athletics":             "OAK",
	"Philadelphia Phillies": "PHI",
	"Pittsburgh Pirates":    "PIT",
	"San Diego Padres":      "SD",
	"San Francisco Giants":  "SF",
	"Seattle Mariners":      "SEA",
	"St. Louis Cardinals":   "STL",
	"Tampa Bay Rays":        "TB",
	"Texas Rangers":         "TEX",
	"Toronto Blue Jays":     "TOR",
	"Washington Nationals":  "WSH",
}

// teamAliases corrige los códigos alternativos que usan distintos feeds.
var teamAliases = map[string]string{
	"AZ":  "ARI",
	"CHW": "CWS",
	"CHA": "CWS",
	"CHN": "CHC",
	"KCR": "KC",
	"LAN": "LAD",
	"ANA": "LAA",
	"NYA": "NYY",
	"NYN": "NYM",
	"SDP": "SD",
	"SFG": "SF",
	"SFN": "SF",
	"SLN": "STL",
	"TBR": "TB",
	"WAS": "WSH",
	"WSN": "WSH",
	"ATH": "OAK",
}

// abbrSet contiene todas las abreviaturas canónicas.
var abbrSet = func() map[string]bool {
	set := make(map[string]bool, len(teamNames))
	for _, abbr := range teamNames {
		set[abbr] = true
	}
	return set
}()

// TeamCode devuelve la abreviatura canónica de un equipo a partir de su
// abreviatura, un alias conocido o su nombre completo.
func TeamCode(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	up := strings.ToUpper(s)
	if abbrSet[up] {
		return up, true
	}
	if alias, ok := teamAliases[up]; ok {
		return alias, true
	}
	for name, abbr := range teamNames {
		if strings.EqualFold(name, s) {
			return abbr, true
		}
	}
	return "", false
}

// teamPrefix detecta un nombre completo al inicio del lado ("New York Yankees -1.5").
// Devuelve la abreviatura y el resto del texto.
func teamPrefix(side string) (abbr, rest string, ok bool) {
	best := ""
	for name := range teamNames {
		if len(name) > len(best) && len(side) >= len(name) && strings.EqualFold(side[:len(name)], name) {
			best = name
		}
	}
	if best == "" {
		return "", side, false
	}
	return teamNames[best], strings.TrimSpace(side[len(best):]), true
}
