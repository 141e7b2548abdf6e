package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/nishio/ai-project-manager/pkg/models"
)

const (
	// NextActionLimit caps how many tasks are sent to the model.
	NextActionLimit = 5
	// MaxPromptTokens is the estimated token budget for a next-action prompt.
	MaxPromptTokens = 6000

	farFuture = "9999-12-31"
)

// NextActionSystemPrompt explains the compact task encoding to the model.
const NextActionSystemPrompt = `You are an assistant that picks today's tasks from a backlog.
Analyse the JSON data and propose the highest-priority tasks.

Data format:
- i: task ID
- t: title
- d: description
- l: important labels
- m: required prerequisite task IDs
- h: must be done by a human
- dd: due date
- ad: appointment date

Output:
- Markdown
- Tasks listed in priority order
- The reason each task is recommended
- Steps to carry it out when useful`

var importantLabels = map[string]bool{"urgent": true, "appointment": true, "must": true}

type compactTask struct {
	ID          string   `json:"i"`
	Title       string   `json:"t"`
	Description string   `json:"d"`
	Labels      []string `json:"l,omitempty"`
	Must        []string `json:"m,omitempty"`
	Human       bool     `json:"h,omitempty"`
	DueDate     string   `json:"dd,omitempty"`
	Appointment string   `json:"ad,omitempty"`
}

// NextActionPrompt is the user prompt plus the bookkeeping shown to the
// caller before it is sent.
type NextActionPrompt struct {
	Prompt          string
	Candidates      int
	Included        []string
	EstimatedTokens int
}

// ErrPromptTooLarge is returned when a prompt exceeds MaxPromptTokens.
var ErrPromptTooLarge = fmt.Errorf("prompt exceeds %d estimated tokens", MaxPromptTokens)

// BuildNextActionPrompt selects Open tasks that are not blocked (when an
// analysis is given), orders them by their earliest due or appointment
// date and encodes the first NextActionLimit compactly.
func BuildNextActionPrompt(tasks []models.Task, analysis *Analysis) (*NextActionPrompt, error) {
	blocked := make(map[string]bool)
	if analysis != nil {
		for _, b := range analysis.Blocked {
			blocked[b.TaskID] = true
		}
	}

	var candidates []models.Task
	for _, t := range FlattenTasks(tasks) {
		if t.Status == models.StatusOpen && !blocked[t.ID] {
			candidates = append(candidates, t)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return earliestDate(candidates[i]) < earliestDate(candidates[j])
	})

	selected := candidates
	if len(selected) > NextActionLimit {
		selected = selected[:NextActionLimit]
	}
	payload := struct {
		Tasks   []compactTask `json:"t"`
		Summary string        `json:"s"`
	}{Tasks: []compactTask{}}

	res := &NextActionPrompt{Candidates: len(candidates)}
	for _, t := range selected {
		payload.Tasks = append(payload.Tasks, compact(t))
		res.Included = append(res.Included, t.ID)
	}
	payload.Summary = fmt.Sprintf("%d more Open task(s) not shown.", len(candidates)-len(selected))

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("encoding prompt: %w", err)
	}
	res.Prompt = string(bytes.TrimSpace(buf.Bytes()))
	res.EstimatedTokens = EstimateTokens(NextActionSystemPrompt) + EstimateTokens(res.Prompt)
	if res.EstimatedTokens > MaxPromptTokens {
		return res, fmt.Errorf("next action: %d tokens: %w", res.EstimatedTokens, ErrPromptTooLarge)
	}
	return res, nil
}

func compact(t models.Task) compactTask {
	c := compactTask{
		ID:          t.ID,
		Title:       truncateRunes(t.Title, 50),
		DueDate:     t.DueDate,
		Appointment: t.AppointmentDate,
		Human:       t.AssignableToHuman(),
	}
	if t.Description != "" {
		c.Description = truncateRunes(t.Description, 50) + "..."
	}
	for _, l := range t.Labels {
		if importantLabels[l] {
			c.Labels = append(c.Labels, l)
		}
	}
	if t.Dependencies != nil {
		for _, d := range t.Dependencies.Must {
			c.Must = append(c.Must, d.TaskID)
		}
	}
	return c
}

func earliestDate(t models.Task) string {
	best := farFuture
	for _, d := range []string{t.DueDate, t.AppointmentDate} {
		if d != "" && d < best {
			best = d
		}
	}
	return best
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// EstimateTokens approximates a token count: two per non-ASCII character,
// one per ASCII character.
func EstimateTokens(s string) int {
	n := 0
	for _, r := range s {
		if r > 127 {
			n += 2
		} else {
			n++
		}
	}
	return n
}
