package cli

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nishio/ai-project-manager/internal/observability"
)

type alertsMock struct {
	evaluateFn func() ([]observability.Alert, error)
}

func (m *alertsMock) Evaluate() ([]observability.Alert, error) {
	return m.evaluateFn()
}

type notifierMock struct {
	notifyFn func(alerts []observability.Alert) error
}

func (m *notifierMock) Notify(alerts []observability.Alert) error {
	return m.notifyFn(alerts)
}

func fixedAlerts(alerts ...observability.Alert) *alertsMock {
	return &alertsMock{evaluateFn: func() ([]observability.Alert, error) { return alerts, nil }}
}

func TestAlertsCmd_NilEngine(t *testing.T) {
	newCLIEnv(t)
	AlertEngine = nil

	_, err := runCLI(t, "alerts")
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("expected not initialized error, got %v", err)
	}
}

func TestAlertsCmd_Output(t *testing.T) {
	newCLIEnv(t)
	at := time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		alerts []observability.Alert
		want   []string
	}{
		{"none", nil, []string{"No active alerts."}},
		{
			"some",
			[]observability.Alert{
				{Severity: observability.SeverityHigh, Message: "ID pool is 92.0% used", TriggeredAt: at},
				{Severity: observability.SeverityLow, Message: "backlog has 600 open tasks", TriggeredAt: at},
			},
			[]string{"2 active alert(s)", "[HIGH] ID pool is 92.0% used", "[LOW] backlog has 600 open tasks", "triggered at 2025-03-15 10:30 UTC"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			AlertEngine = fixedAlerts(tt.alerts...)
			out, err := runCLI(t, "alerts")
			if err != nil {
				t.Fatal(err)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestAlertsCmd_EvaluateError(t *testing.T) {
	newCLIEnv(t)
	AlertEngine = &alertsMock{evaluateFn: func() ([]observability.Alert, error) {
		return nil, fmt.Errorf("event log read error")
	}}

	_, err := runCLI(t, "alerts")
	if err == nil || !strings.Contains(err.Error(), "evaluating alerts") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAlertsCmd_Notify(t *testing.T) {
	newCLIEnv(t)
	AlertEngine = fixedAlerts(observability.Alert{Severity: observability.SeverityMedium, Message: "task T0004 overdue", TriggeredAt: time.Now().UTC()})

	Notifier = nil
	if _, err := runCLI(t, "alerts", "--notify"); err == nil || !strings.Contains(err.Error(), "no notifier configured") {
		t.Errorf("expected missing notifier error, got %v", err)
	}

	var sent []observability.Alert
	Notifier = &notifierMock{notifyFn: func(alerts []observability.Alert) error {
		sent = alerts
		return nil
	}}
	out, err := runCLI(t, "alerts", "--notify")
	if err != nil {
		t.Fatal(err)
	}
	if len(sent) != 1 || !strings.Contains(out, "Alerts sent to Slack.") {
		t.Errorf("sent %v, output %q", sent, out)
	}

	sent = nil
	if _, err := runCLI(t, "alerts"); err != nil {
		t.Fatal(err)
	}
	if sent != nil {
		t.Error("alerts without --notify must not notify")
	}

	Notifier = &notifierMock{notifyFn: func([]observability.Alert) error { return fmt.Errorf("webhook returned 500") }}
	if _, err := runCLI(t, "alerts", "--notify"); err == nil || !strings.Contains(err.Error(), "sending alerts") {
		t.Errorf("expected send error, got %v", err)
	}
}
