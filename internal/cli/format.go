package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nishio/ai-project-manager/internal/core"
	"github.com/nishio/ai-project-manager/pkg/models"
)

// Output formats accepted by --format.
const (
	formatText     = "text"
	formatMarkdown = "markdown"
	formatJSON     = "json"
)

func validFormat(f string) bool {
	return f == formatText || f == formatMarkdown || f == formatJSON
}

// formatTask renders one task the way show-tasks prints it.
func formatTask(t models.Task, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := marshalIndentNoEscape(t)
		if err != nil {
			return "", fmt.Errorf("formatting task %s: %w", t.ID, err)
		}
		return string(data), nil
	case formatMarkdown:
		return fmt.Sprintf("## %s\n\n- ID: %s\n- Status: %s\n- Description: %s\n", t.Title, t.ID, t.Status, t.Description), nil
	default:
		return fmt.Sprintf("Title: %s\nID: %s\nStatus: %s\nDescription: %s\n", t.Title, t.ID, t.Status, t.Description), nil
	}
}

// marshalIndentNoEscape is json.MarshalIndent without HTML escaping, so
// Japanese text and <, >, & print as written.
func marshalIndentNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func printJSON(w io.Writer, v any) error {
	data, err := marshalIndentNoEscape(v)
	if err != nil {
		return fmt.Errorf("formatting JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// describeReason renders one blocking reason on a single line.
func describeReason(r core.BlockingReason) string {
	if r.Kind == core.ReasonHuman {
		return fmt.Sprintf("waiting on %s to %s: %s", r.Assignee, r.Action, r.Reason)
	}
	return fmt.Sprintf("%s is %s: %s", r.TaskID, r.Status, r.Reason)
}

// parseDateFlag parses a YYYY-MM-DD flag value, defaulting to today.
func parseDateFlag(name, value string) (time.Time, error) {
	if value == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	d, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q (use YYYY-MM-DD): %w", name, value, core.ErrMalformedInput)
	}
	return d, nil
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
