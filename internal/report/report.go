// Package report renders a secondary's disconnect episode into a markdown
// summary and its HTML equivalent, the artifacts internal/archive persists.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Episode describes one secondary's disconnect span, ended by a reconnect or
// by the race stopping, the unit internal/archive persists.
type Episode struct {
	ID               string
	SecondaryIndex   int
	SecondaryAddress string
	Mode             string
	DisconnectedAt   time.Time
	ReconnectedAt    time.Time // end of the span (reconnect or race stop); zero leaves it open
	NumDisconnects   int
	TimeDiffMs       int
	LastError        string
}

// Duration returns how long the episode lasted, using time.Now if the
// secondary has not yet reconnected.
func (e Episode) Duration() time.Duration {
	end := e.ReconnectedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(e.DisconnectedAt)
}

// RenderMarkdown builds the markdown disconnect-episode report.
func RenderMarkdown(e Episode) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# Disconnect episode: secondary %d\n\n", e.SecondaryIndex)
	fmt.Fprintf(&b, "- **Address:** %s\n", e.SecondaryAddress)
	fmt.Fprintf(&b, "- **Mode:** %s\n", e.Mode)
	fmt.Fprintf(&b, "- **Disconnected at:** %s\n", e.DisconnectedAt.UTC().Format(time.RFC3339))
	if e.ReconnectedAt.IsZero() {
		fmt.Fprintf(&b, "- **Reconnected at:** still disconnected\n")
	} else {
		fmt.Fprintf(&b, "- **Reconnected at:** %s\n", e.ReconnectedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "- **Duration:** %s\n", e.Duration().Round(time.Second))
	fmt.Fprintf(&b, "- **Disconnects so far:** %d\n", e.NumDisconnects)
	fmt.Fprintf(&b, "- **Clock skew at last contact:** %d ms\n", e.TimeDiffMs)
	if e.LastError != "" {
		fmt.Fprintf(&b, "\n## Last error\n\n```\n%s\n```\n", e.LastError)
	}

	return []byte(b.String())
}

// RenderHTML converts a markdown report to standalone HTML.
func RenderHTML(md []byte) []byte {
	extensions := parser.CommonExtensions
	p := parser.NewWithExtensions(extensions)

	opts := html.RendererOptions{Flags: html.CommonFlags}
	renderer := html.NewRenderer(opts)

	return markdown.ToHTML(md, p, renderer)
}
