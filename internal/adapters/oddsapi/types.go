package oddsapi

import "time"

// DTOs de la respuesta /v4/sports/{sport}/odds.

type event struct {
	ID           string      `json:"id"`
	SportKey     string      `json:"sport_key"`
	CommenceTime time.Time   `json:"commence_time"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	Bookmakers   []bookmaker `json:"bookmakers"`
}

type bookmaker struct {
	Key     string   `json:"key"`
	Title   string   `json:"title"`
	Markets []market `json:"markets"`
}

type market struct {
	Key      string    `json:"key"`
	Outcomes []outcome `json:"outcomes"`
}

type outcome struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"` // equipo, en team_totals
	Price       float64  `json:"price"`
	Point       *float64 `json:"point,omitempty"`
}
