package decision

import "github.com/alejandrodnm/sharpline/internal/domain"

// Policy contiene los umbrales del motor de decisión.
type Policy struct {
	// Banda de precios americanos aceptada, inclusiva.
	MinPrice float64
	MaxPrice float64

	MinFirstStake float64 // unidades
	MinTopUpStake float64 // unidades

	// Segmentos de poca liquidez bloqueados con más de estas horas por delante.
	LowLiquidityMaxHours float64

	DefaultMinEV float64
	// MinEV por clave: "categoria_segmento", segmento o categoría, en ese orden.
	MinEV map[string]float64
}

// DefaultPolicy devuelve los umbrales de producción.
func DefaultPolicy() Policy {
	return Policy{
		MinPrice:             -150,
		MaxPrice:             200,
		MinFirstStake:        1.0,
		MinTopUpStake:        0.5,
		LowLiquidityMaxHours: 12,
		DefaultMinEV:         5.0,
		MinEV: map[string]float64{
			"1st_3":       8.0,
			"1st_7":       8.0,
			"1st":         10.0,
			"1st_5":       5.0,
			"team_totals": 8.0,
			"spread":      5.0,
			"total":       5.0,
			"h2h":         5.0,
			"h2h_1st_5":   4.0,
		},
	}
}

// MinEVFor devuelve el EV mínimo (%) exigido al mercado.
func (p Policy) MinEVFor(market string) float64 {
	category := evCategory(market)
	segment := string(domain.SegmentOf(market))

	if v, ok := p.MinEV[category+"_"+segment]; ok {
		return v
	}
	if v, ok := p.MinEV[segment]; ok {
		return v
	}
	if v, ok := p.MinEV[category]; ok {
		return v
	}
	return p.DefaultMinEV
}

// InBand reporta si el precio cae dentro de la banda permitida.
func (p Policy) InBand(price float64) bool {
	return price >= p.MinPrice && price <= p.MaxPrice
}

func evCategory(market string) string {
	switch domain.FamilyOf(market) {
	case domain.FamilyTeamTotal:
		return "team_totals"
	case domain.FamilyTotal:
		return "total"
	case domain.FamilySpread:
		return "spread"
	case domain.FamilyH2H:
		return "h2h"
	}
	return "other"
}
