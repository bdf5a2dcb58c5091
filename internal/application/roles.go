package application

import (
	"sort"

	"heimdall/internal/models"
)

// RoleDiff is the set of role mutations needed to reconcile a member's
// current roles with the guild's policy.
type RoleDiff struct {
	ToAdd    []string
	ToRemove []string
}

func (d RoleDiff) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0
}

// ComputeRoleDiff is a pure decision function. It never removes a role the
// bot does not manage, treats missing attributes or unmapped values as "no
// role" rather than errors, and produces sorted, deterministic output.
func ComputeRoleDiff(cfg *models.GuildConfig, attrs models.Attributes, currentRoles []string) RoleDiff {
	desired := desiredRoles(cfg, attrs)
	managed := cfg.ManagedRoleIDs()

	current := make(map[string]struct{}, len(currentRoles))
	for _, roleID := range currentRoles {
		current[roleID] = struct{}{}
	}

	var diff RoleDiff
	for roleID := range desired {
		if _, has := current[roleID]; !has {
			diff.ToAdd = append(diff.ToAdd, roleID)
		}
	}
	for roleID := range current {
		if _, managedRole := managed[roleID]; !managedRole {
			continue
		}
		if _, wanted := desired[roleID]; !wanted {
			diff.ToRemove = append(diff.ToRemove, roleID)
		}
	}

	sort.Strings(diff.ToAdd)
	sort.Strings(diff.ToRemove)
	return diff
}

func desiredRoles(cfg *models.GuildConfig, attrs models.Attributes) map[string]struct{} {
	desired := make(map[string]struct{})
	if cfg.VerifiedRoleID != "" {
		desired[cfg.VerifiedRoleID] = struct{}{}
	}

	if cfg.AssignsLevelRoles() {
		if level := attrs.First("level"); level != "" {
			if roleID, ok := cfg.LevelRoleFor(level); ok {
				desired[roleID] = struct{}{}
			}
		}
	}
	if cfg.AssignsClassRoles() {
		if class := attrs.First("class"); class != "" {
			if roleID, ok := cfg.ClassRoleFor(class); ok {
				desired[roleID] = struct{}{}
			}
		}
	}

	return desired
}
