package tui

import (
	"fmt"
	"io"
)

// PrintBanner writes the arbor banner to w.
func PrintBanner(w io.Writer) {
	p := Profile(w)
	// Using a subtle gradient-like color scheme (Green/Teal)
	lines := []struct {
		text, color string
	}{
		{"    __ _ _ __| |__   ___  _ __ ", "#34d399"},
		{"   / _` | '__| '_ \\ / _ \\| '__|", "#2dd4bf"},
		{"  | (_| | |  | |_) | (_) | |   ", "#22d3ee"},
		{"   \\__,_|_|  |_.__/ \\___/|_|   ", "#38bdf8"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, p.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
