package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// TextSurface paints a board as plain text lines.
type TextSurface struct {
	mu sync.Mutex
	w  io.Writer
}

func NewTextSurface(w io.Writer) *TextSurface {
	return &TextSurface{w: w}
}

func (s *TextSurface) ShowDebug(raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "debug: %s\n", raw)
}

func (s *TextSurface) Repaint(v View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "table: %s\n", formatRow(v.Table, false))
	fmt.Fprintf(s.w, "hand:  %s\n", formatRow(v.Hand, true))
}

func formatRow(slots []Slot, numbered bool) string {
	parts := make([]string, len(slots))
	for i, sl := range slots {
		label := "   "
		if sl.Occupied() {
			label = sl.Card
		}
		if numbered {
			parts[i] = fmt.Sprintf("%d:[%s]", i, label)
		} else {
			parts[i] = "[" + label + "]"
		}
	}
	return strings.Join(parts, " ")
}
