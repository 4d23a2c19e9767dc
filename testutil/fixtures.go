// Package testutil provides fixtures, scripted workers and repository
// helpers for pipeline tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// SampleSpec is a small feature spec used by end-to-end tests.
const SampleSpec = `# Login

Users sign in with email and password. Lock the account after five
failed attempts.
`

// WriteSpec writes content to SPEC.md in a fresh temp dir and returns the
// path.
func WriteSpec(t *testing.T, content string) string {
	t.Helper()
	return TempFile(t, "SPEC.md", []byte(content))
}

// TempFile creates a temporary file with the given content and returns its
// path.
func TempFile(t *testing.T, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write temp file %s: %v", name, err)
	}
	return path
}

// PlanTicket is one planner entry.
type PlanTicket struct {
	GID          string   `json:"gid"`
	Title        string   `json:"title"`
	Dependencies []string `json:"dependencies"`
	Complexity   string   `json:"complexity"`
}

// PlanReply renders a planner reply for the given ticket ids, titled
// "Ticket <id>".
func PlanReply(ids ...string) string {
	items := make([]PlanTicket, 0, len(ids))
	for _, id := range ids {
		items = append(items, PlanTicket{GID: id, Title: "Ticket " + id, Dependencies: []string{}, Complexity: "S"})
	}
	return mustJSON(items)
}

// CodeReply renders a coder reply.
func CodeReply(branch, prRef string) string {
	return mustJSON(map[string]any{"branch": branch, "pr_reference": prRef})
}

// TestReply renders a tester reply.
func TestReply(total, passed, failed int, coverage float64) string {
	return mustJSON(map[string]any{"total": total, "passed": passed, "failed": failed, "coverage": coverage})
}

// ReviewReply renders a reviewer reply.
func ReviewReply(approved bool, reason string) string {
	return mustJSON(map[string]any{"approved": approved, "reason": reason})
}

// Fenced wraps a JSON reply in prose and a json code fence, the way models
// usually answer.
func Fenced(reply string) string {
	return fmt.Sprintf("Here is the result.\n\n```json\n%s\n```\n\nLet me know if anything else is needed.", reply)
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic("testutil: marshal reply: " + err.Error())
	}
	return string(data)
}
