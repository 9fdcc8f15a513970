package domain

import (
	"sort"
	"time"
)

// Role etiqueta las vistas del dispatcher para las que califica una fila.
type Role string

const (
	RoleBestBook     Role = "best_book"
	RoleBestBookMain Role = "best_book_main"
	RoleBestBookAlt  Role = "best_book_alt"
	RoleLive         Role = "live"
	RolePersonal     Role = "personal"
	RoleFVDrop       Role = "fv_drop"
)

// SnapshotRow es la forma persistida y visible de una evaluación.
type SnapshotRow struct {
	GameID      string      `json:"game_id"`
	Market      string      `json:"market"`
	Side        string      `json:"side"`
	ThemeKey    string      `json:"theme_key"`
	Segment     Segment     `json:"segment"`
	Class       MarketClass `json:"market_class"`
	HoursToGame float64     `json:"hours_to_game"`

	SimProb        float64       `json:"sim_prob"`
	ConsensusProb  float64       `json:"consensus_prob"`
	FairPrice      float64       `json:"fair_price"`
	ConsensusBooks int           `json:"consensus_books"`
	PricingMethod  PricingMethod `json:"pricing_method,omitempty"`
	BlendedProb    float64       `json:"blended_prob"`
	ModelWeight    float64       `json:"model_weight"`

	BestBook  string  `json:"best_book"`
	Price     float64 `json:"price"`
	EVPercent float64 `json:"ev_percent"`
	RawKelly  float64 `json:"raw_kelly"`

	Baseline     float64   `json:"baseline"`
	Movement     float64   `json:"movement"`
	Direction    Direction `json:"direction"`
	RequiredMove float64   `json:"required_move"`

	Accepted     bool       `json:"accepted"`
	EntryType    EntryType  `json:"entry_type,omitempty"`
	Stake        float64    `json:"stake"`
	SkipReason   SkipReason `json:"skip_reason,omitempty"`
	SkipDetail   string     `json:"skip_detail,omitempty"`
	Exposure     float64    `json:"exposure"`
	Deferred     bool       `json:"deferred,omitempty"`
	PendingDelta float64    `json:"pending_delta,omitempty"`

	Roles    []Role     `json:"roles,omitempty"`
	Visible  bool       `json:"visible"`
	Fresh    bool       `json:"fresh"`
	Logged   bool       `json:"logged"`
	LoggedAt *time.Time `json:"logged_at,omitempty"`
	QueuedAt *time.Time `json:"queued_at,omitempty"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// NewSnapshotRow construye la fila de una evaluación con su veredicto.
func NewSnapshotRow(e Evaluation, d Decision) SnapshotRow {
	row := SnapshotRow{
		GameID:         e.Key.GameID,
		Market:         e.Key.Market,
		Side:           e.Key.Side,
		ThemeKey:       e.Theme.String(),
		Segment:        e.Segment,
		Class:          e.Class,
		HoursToGame:    e.HoursToGame,
		SimProb:        e.SimProb,
		ConsensusProb:  e.Consensus.Prob,
		FairPrice:      e.Consensus.FairPrice,
		ConsensusBooks: e.Consensus.Books,
		PricingMethod:  e.Consensus.Method,
		BlendedProb:    e.BlendedProb,
		ModelWeight:    e.ModelWeight,
		BestBook:       e.BestBook,
		Price:          e.Price,
		EVPercent:      e.EVPercent,
		RawKelly:       e.RawKelly,
		Baseline:       e.Movement.Baseline,
		Movement:       e.Movement.Delta,
		Direction:      e.Movement.Direction,
		RequiredMove:   e.RequiredMove,
		Fresh:          true,
		Visible:        true,
		FirstSeen:      e.EvaluatedAt,
		LastSeen:       e.EvaluatedAt,
	}
	row.ApplyDecision(d)
	return row
}

// NewSkippedRow construye una fila para una clave que no pudo evaluarse.
func NewSkippedRow(k MarketKey, reason SkipReason, now time.Time) SnapshotRow {
	return SnapshotRow{
		GameID:     k.GameID,
		Market:     k.Market,
		Side:       k.Side,
		ThemeKey:   ThemeKeyFor(k).String(),
		Segment:    k.Segment(),
		Class:      k.Class(),
		SkipReason: reason,
		SkipDetail: reason.Describe(),
		Fresh:      true,
		Visible:    true,
		FirstSeen:  now,
		LastSeen:   now,
	}
}

// ApplyDecision copia el veredicto a la fila.
func (r *SnapshotRow) ApplyDecision(d Decision) {
	r.Accepted = d.Accept
	r.EntryType = d.Entry
	r.Stake = d.Stake
	r.Exposure = d.Exposure
	r.Deferred = d.Deferred
	r.PendingDelta = d.PendingDelta
	r.SkipReason = d.Reason
	r.SkipDetail = d.Detail
	if d.Reason != SkipNone && r.SkipDetail == "" {
		r.SkipDetail = d.Reason.Describe()
	}
}

// Key devuelve la MarketKey de la fila.
func (r SnapshotRow) Key() MarketKey {
	return MarketKey{GameID: r.GameID, Market: r.Market, Side: r.Side}
}

// HasRole reporta si la fila tiene el rol dado.
func (r SnapshotRow) HasRole(role Role) bool {
	for _, have := range r.Roles {
		if have == role {
			return true
		}
	}
	return false
}

// AddRoles une roles sin duplicados y en orden estable.
func (r *SnapshotRow) AddRoles(roles ...Role) {
	set := make(map[Role]bool, len(r.Roles)+len(roles))
	for _, role := range r.Roles {
		set[role] = true
	}
	for _, role := range roles {
		if role != "" {
			set[role] = true
		}
	}
	out := make([]Role, 0, len(set))
	for role := range set {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	r.Roles = out
}
