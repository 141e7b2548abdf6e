package cli

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nishio/ai-project-manager/internal/core"
	"github.com/nishio/ai-project-manager/pkg/models"
)

type completerMock struct {
	system, prompt string
	reply          string
	err            error
}

func (m *completerMock) Complete(_ context.Context, system, prompt string) (string, error) {
	m.system, m.prompt = system, prompt
	return m.reply, m.err
}

func TestNextAction(t *testing.T) {
	tasks := seedTasks()
	tasks[1].DueDate = "2025-04-01"
	tasks = append(tasks, models.Task{ID: "T0004", Title: "Pay rent", Status: models.StatusOpen, Type: models.TaskTypeTask, Description: "", DueDate: "2025-03-25"})
	newCLIEnv(t, tasks...)
	llm := &completerMock{reply: "1. Pay rent"}
	LLM = llm

	out, err := runCLI(t, "next-action")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "1. Pay rent" {
		t.Errorf("unexpected output %q", out)
	}
	if llm.system != core.NextActionSystemPrompt {
		t.Error("expected the next-action system prompt")
	}
	// Blocked T0002 and T0003 are left out; earliest due date first.
	if strings.Contains(llm.prompt, "T0002") || strings.Contains(llm.prompt, "T0003") {
		t.Errorf("blocked tasks sent to the model: %s", llm.prompt)
	}
	if strings.Index(llm.prompt, "T0004") > strings.Index(llm.prompt, "T0001") {
		t.Errorf("expected T0004 before T0001: %s", llm.prompt)
	}
}

func TestNextAction_DryRunAndErrors(t *testing.T) {
	newCLIEnv(t, seedTasks()...)

	out, err := runCLI(t, "next-action", "--dry-run")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"i":"T0001"`) {
		t.Errorf("dry run should print the prompt, got %q", out)
	}

	if _, err := runCLI(t, "next-action"); err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("expected missing LLM error, got %v", err)
	}

	LLM = &completerMock{err: errors.New("connection refused")}
	if _, err := runCLI(t, "next-action"); err == nil || !strings.Contains(err.Error(), "asking for next action") {
		t.Errorf("expected wrapped LLM error, got %v", err)
	}
}

func TestNextAction_NoCandidates(t *testing.T) {
	newCLIEnv(t)
	LLM = &completerMock{}

	out, err := runCLI(t, "next-action")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No executable Open tasks.") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestCompleterFor(t *testing.T) {
	newCLIEnv(t)
	configured := &completerMock{}
	LLM = configured

	c, err := completerFor("")
	if err != nil || c != configured {
		t.Errorf("expected the configured client, got %v, %v", c, err)
	}
	c, err = completerFor("qwen2.5")
	if err != nil || c == nil || c == configured {
		t.Errorf("expected a new client for an explicit model, got %v, %v", c, err)
	}

	Config.LLM.Host = "not a url"
	if _, err := completerFor("qwen2.5"); err == nil {
		t.Error("expected an error for a bad host")
	}
}
