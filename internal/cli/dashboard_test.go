package cli

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nishio/ai-project-manager/internal/core"
	"github.com/nishio/ai-project-manager/internal/observability"
	"github.com/nishio/ai-project-manager/pkg/models"
)

func staticLoad(msg dataLoadedMsg) func() tea.Msg {
	return func() tea.Msg { return msg }
}

func TestDashboardModel_Init(t *testing.T) {
	m := newDashboardModel(staticLoad(dataLoadedMsg{}))

	if m.activePanel != panelStatus {
		t.Errorf("expected activePanel = %d, got %d", panelStatus, m.activePanel)
	}
	if !m.loading {
		t.Error("expected loading = true on init")
	}
	if m.Init() == nil {
		t.Error("expected Init to return the load command")
	}
}

func TestDashboardModel_Keys(t *testing.T) {
	tests := []struct {
		name      string
		key       tea.KeyMsg
		wantPanel int
		wantQuit  bool
	}{
		{"q quits", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}, panelStatus, true},
		{"esc quits", tea.KeyMsg{Type: tea.KeyEscape}, panelStatus, true},
		{"tab moves forward", tea.KeyMsg{Type: tea.KeyTab}, panelWork, false},
		{"shift+tab wraps backward", tea.KeyMsg{Type: tea.KeyShiftTab}, panelAlerts, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newDashboardModel(staticLoad(dataLoadedMsg{}))
			m.loading = false

			updated, cmd := m.Update(tt.key)
			if tt.wantQuit {
				if cmd == nil {
					t.Fatal("expected a quit command")
				}
				if _, ok := cmd().(tea.QuitMsg); !ok {
					t.Error("expected tea.QuitMsg")
				}
			} else if cmd != nil {
				t.Error("expected no command")
			}
			if got := updated.(dashboardModel).activePanel; got != tt.wantPanel {
				t.Errorf("activePanel = %d, want %d", got, tt.wantPanel)
			}
		})
	}
}

func TestDashboardModel_RefreshReloads(t *testing.T) {
	calls := 0
	m := newDashboardModel(func() tea.Msg {
		calls++
		return dataLoadedMsg{}
	})
	m.loading = false

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	if !updated.(dashboardModel).loading {
		t.Error("expected loading = true after r")
	}
	if cmd == nil {
		t.Fatal("expected the load command")
	}
	cmd()
	if calls != 1 {
		t.Errorf("load called %d times", calls)
	}
}

func TestDashboardModel_View(t *testing.T) {
	m := newDashboardModel(staticLoad(dataLoadedMsg{}))
	if m.View() != "Loading..." {
		t.Errorf("view before size = %q", m.View())
	}

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 160, Height: 50})
	updated, _ = updated.Update(dataLoadedMsg{
		statusCounts: map[string]int{"Open": 3, "Blocked": 1},
		pool:         core.PoolStatus{Total: 10000, Used: 4, Usage: 0.0004},
		executable:   []string{"T0001"},
		blocked:      []blockedSnapshot{{id: "T0002", reason: "T0003 is Blocked: need dates"}},
		alerts:       []alertSnapshot{{severity: "high", message: "task T0009 blocked for 100h"}},
	})
	view := updated.View()
	for _, want := range []string{"apm Dashboard", "Total: 4", "T0001", "need dates", "task T0009 blocked", "4/10000"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	updated, _ = updated.Update(dataLoadedMsg{err: errors.New("backlog unreadable")})
	if !strings.Contains(updated.View(), "Error: backlog unreadable") {
		t.Error("expected the load error in the view")
	}
}

func TestLoadDashboardData(t *testing.T) {
	newCLIEnv(t, seedTasks()...)
	AlertEngine = fixedAlerts(observability.Alert{Severity: observability.SeverityLow, Message: "waiting on alice"})

	msg := loadDashboardData().(dataLoadedMsg)
	if msg.err != nil {
		t.Fatal(msg.err)
	}
	if msg.statusCounts[string(models.StatusOpen)] != 2 || msg.pool.Used != 4 {
		t.Errorf("unexpected counts %v / %+v", msg.statusCounts, msg.pool)
	}
	if len(msg.blocked) != 2 || msg.blocked[0].id != "T0002" {
		t.Errorf("unexpected blocked %+v", msg.blocked)
	}
	if len(msg.alerts) != 1 {
		t.Errorf("unexpected alerts %+v", msg.alerts)
	}
}

func TestLoadDashboardData_Cycle(t *testing.T) {
	newCLIEnv(t,
		models.Task{ID: "T0001", Title: "a", Status: models.StatusOpen, Type: models.TaskTypeTask,
			Dependencies: &models.Dependencies{Must: []models.TaskDependency{{TaskID: "T0002"}}}},
		models.Task{ID: "T0002", Title: "b", Status: models.StatusOpen, Type: models.TaskTypeTask,
			Dependencies: &models.Dependencies{Must: []models.TaskDependency{{TaskID: "T0001"}}}},
	)

	msg := loadDashboardData().(dataLoadedMsg)
	if msg.err != nil {
		t.Fatalf("a cycle should not fail the load: %v", msg.err)
	}
	if !strings.Contains(msg.cycle, "T0001 -> T0002 -> T0001") {
		t.Errorf("cycle = %q", msg.cycle)
	}
}
