package model

import "fmt"

// Preferences is the per-user appearance and formatting blob stored as JSON
// on the user row.
type Preferences struct {
	Theme       string            `json:"theme"`
	Mode        string            `json:"mode"`
	CustomTheme *CustomTheme      `json:"customTheme,omitempty"`
	Timezone    *string           `json:"timezone,omitempty"` // IANA id, nil = auto-detect
	DateFormat  string            `json:"dateFormat,omitempty"`
	TimeFormat  string            `json:"timeFormat,omitempty"`
}

// CustomTheme carries user-pasted HSL variables for light and dark modes.
// Only consulted when Theme == "custom".
type CustomTheme struct {
	Light map[string]string `json:"light,omitempty"`
	Dark  map[string]string `json:"dark,omitempty"`
}

var (
	themeSchemes = map[string]bool{
		"default": true, "blue": true, "green": true, "orange": true,
		"red": true, "rose": true, "violet": true, "yellow": true,
		"custom": true,
	}
	themeModes  = map[string]bool{"light": true, "dark": true, "system": true}
	dateFormats = map[string]bool{"DD/MM/YYYY": true, "MM/DD/YYYY": true, "YYYY-MM-DD": true}
	timeFormats = map[string]bool{"12h": true, "24h": true}
)

// DefaultPreferences returns the preferences applied when a user has none set.
func DefaultPreferences() Preferences {
	return Preferences{Theme: "default", Mode: "system"}
}

// Validate checks every enum field against its allowed values.
func (p *Preferences) Validate() error {
	if !themeSchemes[p.Theme] {
		return fmt.Errorf("invalid theme %q", p.Theme)
	}
	if !themeModes[p.Mode] {
		return fmt.Errorf("invalid mode %q", p.Mode)
	}
	if p.DateFormat != "" && !dateFormats[p.DateFormat] {
		return fmt.Errorf("invalid dateFormat %q", p.DateFormat)
	}
	if p.TimeFormat != "" && !timeFormats[p.TimeFormat] {
		return fmt.Errorf("invalid timeFormat %q", p.TimeFormat)
	}
	return nil
}
