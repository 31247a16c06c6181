package ui

import (
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/BurntSushi/toml"
)

// T is the active theme, loaded once at startup.
var T = LoadTheme()

// Theme holds the resolved color palette as hex strings.
type Theme struct {
	Foreground          string
	Background          string
	Accent              string
	SelectionForeground string
	SelectionBackground string
	Dim                 string
	Red                 string
	Green               string
	Yellow              string
	Blue                string
	Border              string
	BrightWhite         string
}

// omarchyColors matches the colors.toml format.
type omarchyColors struct {
	Accent              string `toml:"accent"`
	Foreground          string `toml:"foreground"`
	Background          string `toml:"background"`
	SelectionForeground string `toml:"selection_foreground"`
	SelectionBackground string `toml:"selection_background"`
	Color0              string `toml:"color0"`
	Color1              string `toml:"color1"`
	Color2              string `toml:"color2"`
	Color3              string `toml:"color3"`
	Color4              string `toml:"color4"`
	Color8              string `toml:"color8"`
	Color15             string `toml:"color15"`
}

// defaultTheme returns the built-in fallback theme.
func defaultTheme() Theme {
	return Theme{
		Foreground:          "#e5e7eb",
		Background:          "#1a1b26",
		Accent:              "#8b5cf6",
		SelectionForeground: "#e5e7eb",
		SelectionBackground: "#8b5cf6",
		Dim:                 "#6b7280",
		Red:                 "#ef4444",
		Green:               "#22c55e",
		Yellow:              "#eab308",
		Blue:                "#3b82f6",
		Border:              "#374151",
		BrightWhite:         "#f9fafb",
	}
}

// ThemePath returns the colors file: $PROJECTBOARD_THEME, else the current
// Omarchy theme.
func ThemePath() string {
	if p := os.Getenv("PROJECTBOARD_THEME"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "omarchy", "current", "theme", "colors.toml")
}

// LoadTheme reads the theme at ThemePath, falling back to defaults.
func LoadTheme() Theme {
	return LoadThemeFrom(ThemePath())
}

// LoadThemeFrom reads a colors.toml file. Missing keys keep their defaults.
func LoadThemeFrom(path string) Theme {
	t := defaultTheme()
	if path == "" {
		return t
	}
	var oc omarchyColors
	if _, err := toml.DecodeFile(path, &oc); err != nil {
		return t
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&t.Foreground, oc.Foreground)
	set(&t.Background, oc.Background)
	set(&t.Accent, oc.Accent)
	set(&t.SelectionForeground, oc.SelectionForeground)
	set(&t.SelectionBackground, oc.SelectionBackground)
	set(&t.Dim, oc.Color0)
	set(&t.Red, oc.Color1)
	set(&t.Green, oc.Color2)
	set(&t.Yellow, oc.Color3)
	set(&t.Blue, oc.Color4)
	set(&t.Border, oc.Color8)
	set(&t.BrightWhite, oc.Color15)
	return t
}

// Token returns the palette hex for a status colour token such as
// "text-warning" or "bg-success/20 border-success/30". Only the first class
// is considered; unknown tokens resolve to the foreground colour.
func (t Theme) Token(token string) string {
	switch tokenName(token) {
	case "muted-foreground":
		return t.Dim
	case "muted":
		return t.Border
	case "warning":
		return t.Yellow
	case "destructive":
		return t.Red
	case "success":
		return t.Green
	case "primary", "accent":
		return t.Accent
	case "info":
		return t.Blue
	default:
		return t.Foreground
	}
}

// TokenColor resolves a colour token against the active theme.
func TokenColor(token string) color.Color {
	return lipgloss.Color(T.Token(token))
}

// tokenName reduces "bg-warning/20 border-warning/30" to "warning".
func tokenName(token string) string {
	fields := strings.Fields(token)
	if len(fields) == 0 {
		return ""
	}
	name := fields[0]
	for _, prefix := range []string{"text-", "bg-", "border-"} {
		if strings.HasPrefix(name, prefix) {
			name = name[len(prefix):]
			break
		}
	}
	if i := strings.IndexByte(name, '/'); i >= 0 {
		name = name[:i]
	}
	return name
}
