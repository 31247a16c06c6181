package ui

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

var (
	mdMu        sync.Mutex
	mdRenderers = map[int]*glamour.TermRenderer{}
)

// RenderMarkdown renders project notes for the terminal, wrapped at width.
// Rendering errors fall back to the raw text.
func RenderMarkdown(md string, width int) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	if width < 20 {
		width = 20
	}

	mdMu.Lock()
	r, ok := mdRenderers[width]
	if !ok {
		var err error
		r, err = glamour.NewTermRenderer(
			glamour.WithStylePath("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			mdMu.Unlock()
			return md
		}
		mdRenderers[width] = r
	}
	out, err := r.Render(md)
	mdMu.Unlock()
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}
