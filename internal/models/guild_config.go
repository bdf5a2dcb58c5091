package models

type RoleMode string

const (
	RoleModeNone    RoleMode = "none"
	RoleModeLevels  RoleMode = "levels"
	RoleModeClasses RoleMode = "classes"
	RoleModeCustom  RoleMode = "custom"
)

func ParseRoleMode(s string) RoleMode {
	switch s {
	case "levels":
		return RoleModeLevels
	case "classes":
		return RoleModeClasses
	case "custom":
		return RoleModeCustom
	default:
		return RoleModeNone
	}
}

// KnownLevels and KnownClasses are the attribute values Keycloak may vouch for.
var (
	KnownLevels  = []string{"Undergrad", "Graduate"}
	KnownClasses = []string{"First-Year", "Sophomore", "Junior", "Senior", "Fifth-Year Senior", "Masters", "Doctoral"}
)

// GuildConfig holds per-guild role assignment policy.
type GuildConfig struct {
	GuildID        string              `json:"guild_id"`
	Mode           RoleMode            `json:"role_mode"`
	VerifiedRoleID string              `json:"verified_role_id"`
	LevelRoles     map[string]string   `json:"level_roles"`
	ClassRoles     map[string]string   `json:"class_roles"`
	CustomLevels   map[string]struct{} `json:"custom_levels"`
	CustomClasses  map[string]struct{} `json:"custom_classes"`
	LogChannelID   string              `json:"log_channel_id"`
}

// AssignsLevelRoles reports whether the mode grants level-based roles.
func (c *GuildConfig) AssignsLevelRoles() bool {
	return c.Mode == RoleModeLevels || c.Mode == RoleModeCustom
}

// AssignsClassRoles reports whether the mode grants class-based roles.
func (c *GuildConfig) AssignsClassRoles() bool {
	return c.Mode == RoleModeClasses || c.Mode == RoleModeCustom
}

// LevelRoleFor returns the role mapped to a level value, honoring the
// custom enabled set when the guild runs in custom mode.
func (c *GuildConfig) LevelRoleFor(level string) (string, bool) {
	if c.Mode == RoleModeCustom {
		if _, enabled := c.CustomLevels[level]; !enabled {
			return "", false
		}
	}
	roleID, ok := c.LevelRoles[level]
	return roleID, ok && roleID != ""
}

// ClassRoleFor returns the role mapped to a class value, honoring the
// custom enabled set when the guild runs in custom mode.
func (c *GuildConfig) ClassRoleFor(class string) (string, bool) {
	if c.Mode == RoleModeCustom {
		if _, enabled := c.CustomClasses[class]; !enabled {
			return "", false
		}
	}
	roleID, ok := c.ClassRoles[class]
	return roleID, ok && roleID != ""
}

// ManagedRoleIDs returns every role id this bot may grant or revoke in the
// guild. Roles outside this set are never touched.
func (c *GuildConfig) ManagedRoleIDs() map[string]struct{} {
	managed := make(map[string]struct{}, len(c.LevelRoles)+len(c.ClassRoles)+1)
	if c.VerifiedRoleID != "" {
		managed[c.VerifiedRoleID] = struct{}{}
	}
	for _, roleID := range c.LevelRoles {
		if roleID != "" {
			managed[roleID] = struct{}{}
		}
	}
	for _, roleID := range c.ClassRoles {
		if roleID != "" {
			managed[roleID] = struct{}{}
		}
	}
	return managed
}
