package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/sharpline/internal/decision"
	"github.com/alejandrodnm/sharpline/internal/domain"
)

// roleOrder es el orden en que se imprimen las vistas.
var roleOrder = []domain.Role{
	domain.RoleBestBookMain,
	domain.RoleBestBookAlt,
	domain.RoleLive,
	domain.RoleFVDrop,
	domain.RolePersonal,
}

// Console implementa ports.Dispatcher escribiendo a un io.Writer.
type Console struct {
	out   io.Writer
	table bool
	now   func() time.Time
}

// NewConsole crea un dispatcher que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table, now: time.Now}
}

// NewConsoleWriter crea un dispatcher para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table, now: time.Now}
}

// Dispatch imprime las filas visibles en el modo configurado.
func (c *Console) Dispatch(_ context.Context, rows []domain.SnapshotRow) error {
	if len(rows) == 0 {
		fmt.Fprintf(c.out, "[%s] no visible rows\n", c.now().Format("15:04:05"))
		return nil
	}
	if c.table {
		c.printFull(rows)
	} else {
		c.printCompact(rows)
	}
	return nil
}

// printCompact imprime una línea con conteos y las mejores filas.
func (c *Console) printCompact(rows []domain.SnapshotRow) {
	accepted, logged, deferred := countVerdicts(rows)

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d rows → acc:%d logged:%d deferred:%d",
		c.now().Format("15:04:05"), len(rows), accepted, logged, deferred)

	shown := 0
	for _, r := range rankByEV(rows) {
		if shown >= 4 {
			break
		}
		if r.SkipReason == domain.SkipNoSimulation || r.SkipReason == domain.SkipNoConsensus {
			continue
		}
		fmt.Fprintf(&sb, " | %s %s %s %+.0f ev%.1f%% %s",
			gameLabel(r.GameID), r.Market, r.Side, r.Price, r.EVPercent, verdict(r))
		shown++
	}
	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime una tabla por rol; las filas sin rol van al final.
func (c *Console) printFull(rows []domain.SnapshotRow) {
	accepted, logged, deferred := countVerdicts(rows)
	fmt.Fprintf(c.out, "\n[%s] %d rows | accepted:%d logged:%d deferred:%d\n",
		c.now().Format("15:04:05"), len(rows), accepted, logged, deferred)

	placed := make(map[string]bool)
	for _, role := range roleOrder {
		var group []domain.SnapshotRow
		for _, r := range rows {
			if r.HasRole(role) {
				group = append(group, r)
				placed[r.Key().Key()] = true
			}
		}
		if len(group) > 0 {
			c.printTable(string(role), group)
		}
	}

	var rest []domain.SnapshotRow
	for _, r := range rows {
		if !placed[r.Key().Key()] {
			rest = append(rest, r)
		}
	}
	if len(rest) > 0 {
		c.printTable("other", rest)
	}

	fmt.Fprintln(c.out, "  Move = consenso − baseline | Need = movimiento requerido | Stake en unidades (1u = 1% bankroll)")
}

func (c *Console) printTable(title string, rows []domain.SnapshotRow) {
	fmt.Fprintf(c.out, "\n  == %s (%d) ==\n", title, len(rows))

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Game", "Market", "Side", "Book", "Price", "Cons", "Blend", "EV%", "Move", "Need", "Hrs", "Verdict")
	for i, r := range rankByEV(rows) {
		table.Append(
			fmt.Sprintf("%d", i+1),
			gameLabel(r.GameID),
			r.Market,
			r.Side,
			dash(r.BestBook),
			priceLabel(r.Price),
			fmt.Sprintf("%.3f", r.ConsensusProb),
			fmt.Sprintf("%.3f", r.BlendedProb),
			fmt.Sprintf("%.2f", r.EVPercent),
			fmt.Sprintf("%+.4f", r.Movement),
			fmt.Sprintf("%.4f", r.RequiredMove),
			fmt.Sprintf("%.1f", r.HoursToGame),
			verdict(r),
		)
	}
	table.Render()
}

// PrintThresholds imprime el movimiento requerido por horas al partido,
// para una casa sola y para tres o más, con el EV dado.
func (c *Console) PrintThresholds(engine *decision.Engine, markets []string, hours []float64, evPercent float64) {
	fmt.Fprintf(c.out, "\n=== REQUIRED MOVE (EV %.1f%%) ===\n", evPercent)

	table := tablewriter.NewWriter(c.out)
	header := []string{"Market", "Books"}
	for _, h := range hours {
		header = append(header, fmt.Sprintf("%.0fh", h))
	}
	table.Header(cells(header)...)

	for _, m := range markets {
		for _, books := range []int{1, 3} {
			row := []string{m, fmt.Sprintf("%d", books)}
			for _, h := range hours {
				row = append(row, fmt.Sprintf("%.4f", engine.RequiredMove(h, books, m, evPercent)))
			}
			table.Append(cells(row)...)
		}
	}
	table.Render()

	p := engine.Policy()
	fmt.Fprintf(c.out, "  Odds band [%+.0f, %+.0f] | first ≥ %.2fu | top-up ≥ %.2fu | low-liquidity ≤ %.0fh\n\n",
		p.MinPrice, p.MaxPrice, p.MinFirstStake, p.MinTopUpStake, p.LowLiquidityMaxHours)
}

// --- helpers ---

func cells(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func countVerdicts(rows []domain.SnapshotRow) (accepted, logged, deferred int) {
	for _, r := range rows {
		if r.Accepted {
			accepted++
		}
		if r.Logged {
			logged++
		}
		if r.Deferred {
			deferred++
		}
	}
	return
}

func rankByEV(rows []domain.SnapshotRow) []domain.SnapshotRow {
	out := make([]domain.SnapshotRow, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EVPercent > out[j].EVPercent
	})
	return out
}

func verdict(r domain.SnapshotRow) string {
	switch {
	case r.Accepted && r.Logged:
		return fmt.Sprintf("%s %.2fu ✓", r.EntryType, r.Stake)
	case r.Accepted:
		return fmt.Sprintf("%s %.2fu", r.EntryType, r.Stake)
	case r.Deferred:
		return fmt.Sprintf("%s +%.2fu", r.SkipReason, r.PendingDelta)
	case r.SkipReason != domain.SkipNone:
		return string(r.SkipReason)
	}
	return "-"
}

// gameLabel recorta el game id a "AWAY@HOME HH:MM".
func gameLabel(id string) string {
	g, err := domain.ParseGameID(id)
	if err != nil {
		return id
	}
	if g.Start == "" {
		return g.Away + "@" + g.Home
	}
	return g.Away + "@" + g.Home + " " + g.Start[:2] + ":" + g.Start[2:]
}

func priceLabel(p float64) string {
	if p == 0 {
		return "-"
	}
	return fmt.Sprintf("%+.0f", p)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
