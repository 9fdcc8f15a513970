package domain

import "time"

// BetRecord es una apuesta confirmada en el bet log.
type BetRecord struct {
	ID          string
	Key         MarketKey
	ThemeKey    string
	Segment     Segment
	Entry       EntryType
	Stake       float64
	Price       float64
	EVPercent   float64
	BlendedProb float64
	Source      string // scanner | batch
	LoggedAt    time.Time
}

// NewBetRecord construye el registro de una decisión aceptada.
func NewBetRecord(e Evaluation, d Decision, source string, now time.Time) BetRecord {
	return BetRecord{
		Key:         e.Key,
		ThemeKey:    e.Theme.String(),
		Segment:     e.Segment,
		Entry:       d.Entry,
		Stake:       d.Stake,
		Price:       e.Price,
		EVPercent:   e.EVPercent,
		BlendedProb: e.BlendedProb,
		Source:      source,
		LoggedAt:    now,
	}
}
