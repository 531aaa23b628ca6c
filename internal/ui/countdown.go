package ui

import (
	"fmt"
	"time"

	"github.com/AndrewLester/countdown/internal/rpc"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

const RefreshPeriod = 100 * time.Millisecond

const (
	padding  = 2
	maxWidth = 80
)

// StatusSource reports the countdown to display, locally or over RPC.
type StatusSource func() (*rpc.Status, error)

type CountdownModel struct {
	title    string
	source   StatusSource
	stop     func() error
	progress progress.Model

	status  *rpc.Status
	stopped bool
	err     error
}

type tickMsg time.Time
type statusMsg *rpc.Status
type stoppedMsg struct{}
type errMsg struct{ err error }

// NewCountdownModel shows the status reported by source until the countdown
// expires or stops. A nil stop disables the stop key.
func NewCountdownModel(title string, source StatusSource, stop func() error) CountdownModel {
	return CountdownModel{
		title:    title,
		source:   source,
		stop:     stop,
		progress: progress.New(progress.WithScaledGradient("#68b1b1", "#6ea4ff")),
	}
}

func tickCommand(duration time.Duration) tea.Cmd {
	return tea.Tick(duration, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchStatusCommand(source StatusSource) tea.Cmd {
	return func() tea.Msg {
		status, err := source()
		if err != nil {
			return errMsg{fmt.Errorf("fetching countdown status: %w", err)}
		}
		return statusMsg(status)
	}
}

func stopCommand(stop func() error) tea.Cmd {
	return func() tea.Msg {
		if err := stop(); err != nil {
			return errMsg{fmt.Errorf("stopping countdown: %w", err)}
		}
		return stoppedMsg{}
	}
}

func (m CountdownModel) Init() tea.Cmd {
	return fetchStatusCommand(m.source)
}

func (m CountdownModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "s":
			if m.stop != nil && !m.stopped {
				return m, stopCommand(m.stop)
			}
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.progress.Width = msg.Width - padding*2 - 4
		if m.progress.Width > maxWidth {
			m.progress.Width = maxWidth
		}
		return m, nil
	case tickMsg:
		return m, fetchStatusCommand(m.source)
	case statusMsg:
		m.status = msg
		if m.status == nil || m.status.Expired() || !m.status.Running {
			return m, tea.Quit
		}
		return m, tickCommand(RefreshPeriod)
	case stoppedMsg:
		m.stopped = true
		return m, fetchStatusCommand(m.source)
	case errMsg:
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m CountdownModel) View() (s string) {
	s += TitleStyle(m.title) + "\n"

	if m.err != nil {
		return s + ErrorStyle(m.err.Error()) + "\n"
	}
	if m.status == nil {
		return s + HelpStyle("Waiting for countdown...") + "\n"
	}
	if m.status.ID == "" {
		return s + HelpStyle("No countdown is running.") + "\n"
	}

	if m.status.Expired() {
		s += ExpiredStyle("Time is up!") + "\n"
	} else {
		s += RemainingStyle(FormatRemaining(m.status.Remaining)) + "\n"
	}
	s += m.progress.ViewAs(Elapsed(m.status)) + "\n\n"
	s += ModeStyle(m.status.Mode)
	if !m.status.Running && !m.status.Expired() {
		s += HelpStyle(" (stopped)")
	}
	s += "\n\n"

	if m.stop != nil {
		s += HelpStyle("q: exit, s: stop countdown") + "\n"
	} else {
		s += HelpStyle("q: exit") + "\n"
	}
	return
}

func (m CountdownModel) Err() error {
	return m.err
}

// Status is the last status received, or nil.
func (m CountdownModel) Status() *rpc.Status {
	return m.status
}

// FormatRemaining renders milliseconds as [Nd ]HH:MM:SS.t, clamping
// negative values to zero.
func FormatRemaining(millis int64) string {
	if millis < 0 {
		millis = 0
	}
	remaining := time.Duration(millis) * time.Millisecond

	days := remaining / (24 * time.Hour)
	remaining -= days * 24 * time.Hour
	hours := remaining / time.Hour
	remaining -= hours * time.Hour
	minutes := remaining / time.Minute
	remaining -= minutes * time.Minute
	seconds := remaining / time.Second
	remaining -= seconds * time.Second
	tenths := remaining / (100 * time.Millisecond)

	clock := fmt.Sprintf("%02d:%02d:%02d.%d", hours, minutes, seconds, tenths)
	if days > 0 {
		return fmt.Sprintf("%dd %s", days, clock)
	}
	return clock
}

// Elapsed is the share of the countdown that has passed, between 0 and 1.
func Elapsed(status *rpc.Status) float64 {
	if status.Initial <= 0 {
		return 1
	}
	elapsed := 1 - float64(status.Remaining)/float64(status.Initial)
	switch {
	case elapsed < 0:
		return 0
	case elapsed > 1:
		return 1
	}
	return elapsed
}
