package review

import (
	"fmt"
	"io"
	"strings"

	"github.com/nextreview/next-review/internal/gerrit"
	"github.com/nextreview/next-review/internal/terminal"
)

// Renderer writes review lines to the CLI.
type Renderer struct {
	Out io.Writer
}

// Render prints one line per review, up to max. A max <= 0 means no cap.
// Each line is URL, project, and trimmed subject.
func (r Renderer) Render(reviews []gerrit.Review, max int) {
	n := len(reviews)
	if max > 0 && max < n {
		n = max
	}
	for _, rev := range reviews[:n] {
		fmt.Fprintf(r.Out, "%s %s %s\n",
			terminal.Color(terminal.Blue)+rev.URL+terminal.Color(terminal.Reset),
			terminal.Color(terminal.Yellow)+rev.Project+terminal.Color(terminal.Reset),
			strings.TrimSpace(rev.Subject))
	}
}

// RenderNothing prints the empty-result message.
func (r Renderer) RenderNothing() {
	fmt.Fprintln(r.Out, "Nothing to review!")
}
