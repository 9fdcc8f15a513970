package snapshot

import (
	"strings"

	"github.com/alejandrodnm/sharpline/internal/domain"
)

// RoleConfig define qué filas califican para cada vista del dispatcher.
type RoleConfig struct {
	PopularBooks  []string
	PersonalBooks []string
	LiveMinEV     float64 // %
	FVDropMinEV   float64 // %
}

// DefaultRoleConfig devuelve la configuración de roles por defecto.
func DefaultRoleConfig() RoleConfig {
	return RoleConfig{
		PopularBooks:  []string{"fanduel", "draftkings", "betmgm", "caesars", "espnbet", "fanatics"},
		PersonalBooks: nil,
		LiveMinEV:     3.0,
		FVDropMinEV:   5.0,
	}
}

// AssignRoles etiqueta la fila. Los roles se suman a los que ya tenga
// (son pegajosos entre polls vía Merge).
func AssignRoles(row *domain.SnapshotRow, cfg RoleConfig) {
	var roles []domain.Role

	if row.BestBook != "" && containsFold(cfg.PopularBooks, row.BestBook) {
		roles = append(roles, domain.RoleBestBook)
		if row.Class == domain.ClassAlternate {
			roles = append(roles, domain.RoleBestBookAlt)
		} else {
			roles = append(roles, domain.RoleBestBookMain)
		}
	}
	if row.BestBook != "" && containsFold(cfg.PersonalBooks, row.BestBook) {
		roles = append(roles, domain.RolePersonal)
	}
	if row.EVPercent >= cfg.LiveMinEV && row.SkipReason != domain.SkipGameStarted {
		roles = append(roles, domain.RoleLive)
	}
	if row.Movement > domain.MovementEpsilon && !row.Logged && row.EVPercent >= cfg.FVDropMinEV {
		roles = append(roles, domain.RoleFVDrop)
	}
	row.AddRoles(roles...)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
