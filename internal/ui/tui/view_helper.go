package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/waffletower/InvokeAI/internal/domain"
)

func clampString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))

	n := 0
	for _, r := range s {
		if n >= maxLen {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String() + "…"
}

func renderEvent(ev domain.Event) string {
	node := ev.SourceNodeID
	if node == "" {
		node = ev.NodeID
	}
	switch ev.Type {
	case domain.EventInvocationStarted:
		return "  …  " + node
	case domain.EventInvocationComplete:
		return "  ✓  " + node
	case domain.EventInvocationError:
		return "  ✗  " + node + ": " + clampString(ev.Error, 120)
	case domain.EventSessionComplete:
		return "  ■  session complete"
	default:
		return "  ?  " + string(ev.Type)
	}
}

func renderReport(t Theme, r domain.RunReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Session: %s\nDuration: %s\n\n", r.SessionID, r.Duration())

	for _, n := range r.Nodes {
		if n.Failed() {
			b.WriteString(t.Fail.Render("✗ " + n.SourceNodeID))
			fmt.Fprintf(&b, " (%s)\n    %s\n", n.Type, clampString(n.Error, 200))
			continue
		}
		b.WriteString(t.OK.Render("✓ " + n.SourceNodeID))
		fmt.Fprintf(&b, " (%s)\n", n.Type)
		for _, k := range sortedKeys(n.Values) {
			fmt.Fprintf(&b, "    %s = %s\n", k, clampString(formatValue(n.Values[k]), 120))
		}
	}

	if !r.Complete {
		b.WriteString("\n")
		b.WriteString(t.Fail.Render("session did not complete"))
		b.WriteString("\n")
	}
	return b.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
