package diagram

import (
	"fmt"
	"strings"
)

func statusTag(status string) string {
	switch status {
	case StatusCompleted:
		return "[OK]"
	case StatusFailed:
		return "[FAIL]"
	case StatusSkipped:
		return "[SKIP]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as a level-by-level box diagram
// followed by the edge list, so branches and loops stay readable.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	for i, level := range model.Levels {
		var boxes []asciiBox
		for _, id := range level {
			if node := findNode(model.Nodes, id); node != nil {
				boxes = append(boxes, makeBox(node))
			}
		}
		renderBoxRow(&b, boxes)
		if i < len(model.Levels)-1 && len(boxes) > 0 {
			b.WriteString("       │\n")
			b.WriteString("       ▼\n")
		}
	}

	b.WriteString("\nedges:\n")
	for _, e := range model.Edges {
		if e.From == startID || e.To == endID {
			continue
		}
		label := ""
		if e.Label != "" {
			label = " [" + e.Label + "]"
		}
		fmt.Fprintf(&b, "  %s ─→ %s%s\n", e.From, e.To, label)
	}

	return b.String()
}

type asciiBox struct {
	lines []string
	width int
}

func makeBox(node *Node) asciiBox {
	content := []string{firstLine(node.Label)}
	if node.Status != nil {
		line := statusTag(node.Status.Status)
		if node.Status.Visits > 1 {
			line += fmt.Sprintf(" x%d", node.Status.Visits)
		}
		if node.Status.DurationMs > 0 {
			line += fmt.Sprintf(" %dms", node.Status.DurationMs)
		}
		content = append(content, line)
	}

	maxLen := 0
	for _, line := range content {
		maxLen = max(maxLen, len([]rune(line)))
	}
	width := maxLen + 4

	lines := []string{"┌" + strings.Repeat("─", width-2) + "┐"}
	for _, c := range content {
		lines = append(lines, "│ "+c+strings.Repeat(" ", maxLen-len([]rune(c)))+" │")
	}
	lines = append(lines, "└"+strings.Repeat("─", width-2)+"┘")
	return asciiBox{lines: lines, width: width}
}

func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	height := 0
	for _, box := range boxes {
		height = max(height, len(box.lines))
	}
	for row := 0; row < height; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

func findNode(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
