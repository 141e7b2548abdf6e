package observability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Notifier sends alert notifications to external channels.
type Notifier interface {
	Notify(alerts []Alert) error
}

type slackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a Notifier that posts a backlog alert digest to
// the given Slack incoming webhook.
func NewSlackNotifier(webhookURL string) Notifier {
	return &slackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// digestSections fixes the order and headings of the digest. Conditions
// not listed here go last under their raw name.
var digestSections = []struct {
	condition string
	heading   string
}{
	{ConditionBlockedTooLong, "Blocked too long"},
	{ConditionPoolUsage, "ID pool"},
	{ConditionOverdue, "Overdue tasks"},
	{ConditionHumanWaiting, "Waiting on people"},
	{ConditionBacklogSize, "Backlog size"},
}

// Notify posts the alerts as one digest. An empty slice sends nothing.
func (s *slackNotifier) Notify(alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	body, err := json.Marshal(buildDigest(alerts))
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}
	resp, err := s.client.Post(s.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting to slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// buildDigest renders one section per condition. Task alerts list the task
// IDs they concern so the reader can run `apm show-tasks` on them.
func buildDigest(alerts []Alert) slackMessage {
	byCondition := make(map[string][]Alert)
	var extra []string
	for _, a := range alerts {
		if _, ok := byCondition[a.Condition]; !ok && !knownCondition(a.Condition) {
			extra = append(extra, a.Condition)
		}
		byCondition[a.Condition] = append(byCondition[a.Condition], a)
	}

	summary := digestSummary(alerts)
	blocks := []slackBlock{{
		Type: "header",
		Text: &slackText{Type: "plain_text", Text: "apm backlog alerts"},
	}, {
		Type: "section",
		Text: &slackText{Type: "mrkdwn", Text: summary},
	}}

	addSection := func(heading string, group []Alert) {
		var b strings.Builder
		fmt.Fprintf(&b, "*%s* (%d)", heading, len(group))
		var taskIDs []string
		for _, a := range group {
			fmt.Fprintf(&b, "\n%s %s", severityEmoji(a.Severity), a.Message)
			if a.TaskID != "" {
				taskIDs = append(taskIDs, a.TaskID)
			}
		}
		blocks = append(blocks, slackBlock{Type: "divider"}, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: b.String()},
		})
		if len(taskIDs) > 0 {
			blocks = append(blocks, slackBlock{
				Type:     "context",
				Elements: []slackText{{Type: "mrkdwn", Text: "`apm show-tasks " + strings.Join(taskIDs, " ") + "`"}},
			})
		}
	}
	for _, sec := range digestSections {
		if group := byCondition[sec.condition]; len(group) > 0 {
			addSection(sec.heading, group)
		}
	}
	for _, cond := range extra {
		addSection(cond, byCondition[cond])
	}

	blocks = append(blocks, slackBlock{
		Type:     "context",
		Elements: []slackText{{Type: "mrkdwn", Text: "Evaluated " + alerts[0].TriggeredAt.UTC().Format("2006-01-02 15:04 UTC")}},
	})
	return slackMessage{Text: summary, Blocks: blocks}
}

// digestSummary reads like "3 alerts: 1 high, 2 medium".
func digestSummary(alerts []Alert) string {
	counts := make(map[AlertSeverity]int)
	for _, a := range alerts {
		counts[a.Severity]++
	}
	var parts []string
	for _, sev := range []AlertSeverity{SeverityHigh, SeverityMedium, SeverityLow} {
		if counts[sev] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[sev], sev))
		}
	}
	noun := "alerts"
	if len(alerts) == 1 {
		noun = "alert"
	}
	return fmt.Sprintf("%d %s: %s", len(alerts), noun, strings.Join(parts, ", "))
}

func knownCondition(cond string) bool {
	for _, sec := range digestSections {
		if sec.condition == cond {
			return true
		}
	}
	return false
}

func severityEmoji(severity AlertSeverity) string {
	switch severity {
	case SeverityHigh:
		return "\U0001f534"
	case SeverityMedium:
		return "\U0001f7e1"
	case SeverityLow:
		return "\U0001f535"
	default:
		return "❓"
	}
}
