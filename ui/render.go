package ui

import (
	"fmt"
	"strings"

	"github.com/dgnsrekt/readaloud/internal/queue"
	"github.com/muesli/reflow/wordwrap"
)

const gutterWidth = 6

// renderSegments lays the queue out one block per segment and returns the
// first line of each block.
func renderSegments(segs []queue.Info, current, width int, active func(...string) string) (string, []int) {
	if width <= gutterWidth {
		width = gutterWidth + 20
	}
	var (
		b      strings.Builder
		starts = make([]int, len(segs))
		line   int
	)
	for i, seg := range segs {
		starts[i] = line
		wrapped := wordwrap.String(seg.Text, width-gutterWidth)

		style := normalStyle
		switch {
		case i == current:
			style = active
		case seg.Status == queue.Generating:
			style = pendingStyle
		case i < current:
			style = dimStyle
		}

		lines := strings.Split(wrapped, "\n")
		for j, l := range lines {
			gutter := strings.Repeat(" ", gutterWidth)
			if j == 0 {
				marker := " "
				if i == current {
					marker = "▌"
				}
				gutter = gutterStyle(fmt.Sprintf("%4d", i+1)) + marker + " "
			}
			b.WriteString(gutter + style(l) + "\n")
		}
		b.WriteString("\n")
		line += len(lines) + 1
	}
	return b.String(), starts
}
