package observability

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var digestTime = time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)

func digestAlerts() []Alert {
	return []Alert{
		{ID: "blocked-T0009", Condition: ConditionBlockedTooLong, TaskID: "T0009", Severity: SeverityHigh,
			Message: "task T0009 has been blocked for more than 72 hours", TriggeredAt: digestTime},
		{ID: "id-pool-usage", Condition: ConditionPoolUsage, Severity: SeverityMedium,
			Message: "ID pool is 60.0% used (6000 of 10000)", TriggeredAt: digestTime},
		{ID: "overdue-T0002", Condition: ConditionOverdue, TaskID: "T0002", Severity: SeverityMedium,
			Message: `task T0002 "Renew passport" was due 2025-03-01`, TriggeredAt: digestTime},
		{ID: "overdue-T0005", Condition: ConditionOverdue, TaskID: "T0005", Severity: SeverityMedium,
			Message: `task T0005 "Pay rent" was due 2025-03-10`, TriggeredAt: digestTime},
		{ID: "human-T0009-reply", Condition: ConditionHumanWaiting, TaskID: "T0009", Severity: SeverityLow,
			Message: "task T0009 is waiting on alice to reply", TriggeredAt: digestTime},
	}
}

func sectionTexts(msg slackMessage) []string {
	var out []string
	for _, b := range msg.Blocks {
		if b.Type == "section" && b.Text != nil {
			out = append(out, b.Text.Text)
		}
	}
	return out
}

func TestSlackNotifier_NoAlerts(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL)
	if err := n.Notify(nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if called {
		t.Fatal("expected no HTTP request for empty alerts")
	}
}

func TestSlackNotifier_PostsDigest(t *testing.T) {
	var body []byte
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := NewSlackNotifier(srv.URL).Notify(digestAlerts()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if contentType != "application/json" {
		t.Errorf("Content-Type = %s", contentType)
	}
	var msg slackMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatalf("unmarshaling request body: %v", err)
	}
	if msg.Text != "5 alerts: 1 high, 3 medium, 1 low" {
		t.Errorf("fallback text = %q", msg.Text)
	}
}

func TestBuildDigest_GroupsByCondition(t *testing.T) {
	msg := buildDigest(digestAlerts())

	sections := sectionTexts(msg)
	wantHeadings := []string{"5 alerts", "*Blocked too long* (1)", "*ID pool* (1)", "*Overdue tasks* (2)", "*Waiting on people* (1)"}
	if len(sections) != len(wantHeadings) {
		t.Fatalf("got %d sections: %q", len(sections), sections)
	}
	for i, want := range wantHeadings {
		if !strings.HasPrefix(sections[i], want) {
			t.Errorf("section %d = %q, want prefix %q", i, sections[i], want)
		}
	}
	if !strings.Contains(sections[3], "Renew passport") || !strings.Contains(sections[3], "Pay rent") {
		t.Errorf("overdue section should list both tasks: %s", sections[3])
	}

	var hints []string
	for _, b := range msg.Blocks {
		if b.Type == "context" {
			hints = append(hints, b.Elements[0].Text)
		}
	}
	want := []string{"`apm show-tasks T0009`", "`apm show-tasks T0002 T0005`", "`apm show-tasks T0009`", "Evaluated 2025-03-15 10:30 UTC"}
	if strings.Join(hints, "|") != strings.Join(want, "|") {
		t.Errorf("context blocks = %q\nwant %q", hints, want)
	}
}

func TestBuildDigest_UnknownConditionGoesLast(t *testing.T) {
	alerts := []Alert{
		{ID: "x", Condition: "custom_check", Severity: SeverityLow, Message: "something else", TriggeredAt: digestTime},
		{ID: "backlog-size", Condition: ConditionBacklogSize, Severity: SeverityLow, Message: "backlog has 600 open tasks", TriggeredAt: digestTime},
	}
	sections := sectionTexts(buildDigest(alerts))
	if len(sections) != 3 || !strings.HasPrefix(sections[1], "*Backlog size*") || !strings.HasPrefix(sections[2], "*custom_check* (1)") {
		t.Errorf("sections = %q", sections)
	}
	if sections[0] != "2 alerts: 2 low" {
		t.Errorf("summary = %q", sections[0])
	}
}

func TestSlackNotifier_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewSlackNotifier(srv.URL).Notify(digestAlerts()[:1])
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected error with status 500, got %v", err)
	}
}
