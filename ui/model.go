// Package ui renders the control panel in the terminal with bubbletea.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kilianp07/rcpanel/app"
	"github.com/kilianp07/rcpanel/core/command"
	"github.com/kilianp07/rcpanel/core/dispatch"
	coremqtt "github.com/kilianp07/rcpanel/core/mqtt"
	"github.com/kilianp07/rcpanel/core/status"
)

// Controller is the panel surface driven by the terminal.
type Controller interface {
	Dispatch(cmd command.Command) dispatch.Outcome
	Reset(ctx context.Context) error
	Status() status.Record
	CooldownRemaining() time.Duration
	ConnectionState() coremqtt.ConnectionState
}

type (
	tickMsg     app.Tick
	statusMsg   status.Record
	resetMsg    struct{ err error }
	dispatchMsg dispatch.Outcome
)

// Model is the bubbletea model of the panel.
type Model struct {
	ctx     context.Context
	ctl     Controller
	ticks   <-chan app.Tick
	updates <-chan status.Record
	theme   theme

	status    status.Record
	remaining time.Duration
	state     coremqtt.ConnectionState
	last      *dispatch.Outcome
	resetting bool
	err       error
}

// New builds a Model. ticks and updates may be nil.
func New(ctx context.Context, ctl Controller, ticks <-chan app.Tick, updates <-chan status.Record) Model {
	return Model{
		ctx:       ctx,
		ctl:       ctl,
		ticks:     ticks,
		updates:   updates,
		theme:     newTheme(),
		status:    ctl.Status(),
		remaining: ctl.CooldownRemaining(),
		state:     ctl.ConnectionState(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitTick(m.ticks), waitStatus(m.updates))
}

func waitTick(ch <-chan app.Tick) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		t, ok := <-ch
		if !ok {
			return nil
		}
		return tickMsg(t)
	}
}

func waitStatus(ch <-chan status.Record) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		r, ok := <-ch
		if !ok {
			return nil
		}
		return statusMsg(r)
	}
}

func (m Model) resetCmd() tea.Cmd {
	ctx, ctl := m.ctx, m.ctl
	return func() tea.Msg {
		return resetMsg{err: ctl.Reset(ctx)}
	}
}

// dispatchCmd runs the dispatch off the update loop; the publish may wait
// for the broker.
func (m Model) dispatchCmd(cmd command.Command) tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		return dispatchMsg(ctl.Dispatch(cmd))
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			if m.resetting {
				return m, nil
			}
			m.resetting = true
			m.state = coremqtt.Connecting
			return m, m.resetCmd()
		}
		if cmd, ok := keyCommands[key]; ok {
			return m, m.dispatchCmd(cmd)
		}
		return m, nil
	case dispatchMsg:
		out := dispatch.Outcome(msg)
		m.last = &out
		m.status = m.ctl.Status()
		m.remaining = m.ctl.CooldownRemaining()
		return m, nil
	case tickMsg:
		m.remaining = msg.Remaining
		m.state = msg.State
		return m, waitTick(m.ticks)
	case statusMsg:
		m.status = status.Record(msg)
		return m, waitStatus(m.updates)
	case resetMsg:
		m.resetting = false
		m.err = msg.err
		m.status = m.ctl.Status()
		m.state = m.ctl.ConnectionState()
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	badge, ok := m.theme.badge[m.state.String()]
	if !ok {
		badge = m.theme.badge["disconnected"]
	}
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		m.theme.header.Render("RC car control"), " ", badge.Render(m.state.String()))

	var body strings.Builder
	body.WriteString(m.theme.title.Render("status") + "\n")
	body.WriteString(m.statusStyle().Render(m.status.Text) + "\n\n")
	body.WriteString(m.theme.title.Render("cooldown") + "\n")
	if m.remaining > 0 {
		body.WriteString(m.theme.waiting.Render(fmt.Sprintf("wait %.1fs", m.remaining.Seconds())))
	} else {
		body.WriteString(m.theme.ready.Render("ready"))
	}
	if m.last != nil {
		body.WriteString("\n\n" + m.theme.title.Render("last command") + "\n")
		body.WriteString(fmt.Sprintf("%s: %s", m.last.Command, m.last.Kind))
	}
	if m.err != nil {
		body.WriteString("\n\n" + m.theme.rejected.Render(m.err.Error()))
	}

	return m.theme.root.Render(lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.theme.panel.Render(body.String()),
		m.theme.helpText.Render(helpLine),
	))
}

func (m Model) statusStyle() lipgloss.Style {
	switch m.status.Source {
	case status.SourceInbound:
		return m.theme.status
	case status.SourceRejected:
		return m.theme.rejected
	case status.SourceOptimistic:
		return m.theme.local
	default:
		return m.theme.title
	}
}
