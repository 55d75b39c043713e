package tui

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/waffletower/InvokeAI/internal/domain"
	"github.com/waffletower/InvokeAI/internal/graph"
)

const unexpectedError = "Unexpected error (see logs)"

var reLine = regexp.MustCompile(`(?i)\bline\s+(\d+)\b`)

// notFoundSubjects maps op prefixes to what the user was looking for.
var notFoundSubjects = []struct {
	op      string
	subject string
}{
	{"yamlgraph", "Graph"},
	{"resolve_graph", "Graph"},
	{"yamlenv", "Environment"},
	{"workspacefinder", "Workspace"},
	{"store", "Session"},
}

// userMessage turns an error into a one-line message for the status bar.
func userMessage(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.Canceled):
		return "Run cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "Run timed out"
	}

	var oe *domain.OpError
	if !errors.As(err, &oe) {
		if looksLikeYAMLProblem(err.Error()) {
			return withLine("Invalid YAML", err)
		}
		return unexpectedError
	}

	switch oe.Kind {
	case domain.KindNotFound:
		for _, s := range notFoundSubjects {
			if strings.Contains(oe.Op, s.op) {
				return s.subject + " not found"
			}
		}
		return "Not found"

	case domain.KindInvalidGraph:
		msg := "Invalid graph"
		if errors.Is(err, graph.ErrCycle) {
			msg = "Graph contains a cycle"
		}
		if p := strings.TrimSpace(oe.Path); p != "" {
			return msg + " at " + p
		}
		return msg

	case domain.KindNodeExecuted:
		return "Node already executed"

	case domain.KindMissingVar:
		if v := missingVarName(err); v != "" {
			return "Missing variable " + v
		}
		return "Missing variable"

	case domain.KindInvalidConfig:
		if !looksLikeYAMLProblem(err.Error()) {
			return "Invalid config"
		}
		base := "config"
		if p := strings.TrimSpace(oe.Path); p != "" {
			base = filepath.Base(p)
		}
		return withLine("Invalid YAML at "+base, err)
	}

	return unexpectedError
}

func looksLikeYAMLProblem(s string) bool {
	ls := strings.ToLower(s)
	return strings.Contains(ls, "yaml:") || strings.Contains(ls, "did not find expected") || strings.Contains(ls, "cannot unmarshal")
}

func withLine(msg string, err error) string {
	if m := reLine.FindStringSubmatch(err.Error()); len(m) == 2 {
		return msg + " line " + m[1]
	}
	return msg
}

// missingVarName returns the word after the last "missing variable:" in err.
func missingVarName(err error) string {
	s := err.Error()
	marker := domain.ErrMissingVar.Error() + ":"
	i := strings.LastIndex(strings.ToLower(s), marker)
	if i < 0 {
		return ""
	}
	fields := strings.Fields(s[i+len(marker):])
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], " .,:;\"'")
}
