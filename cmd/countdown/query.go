package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/AndrewLester/countdown/internal/ui"
	"github.com/AndrewLester/countdown/pkg/sntp"
	"github.com/beevik/ntp"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

func handleQueryCommand(config sntp.Config, server string, compare bool) {
	config.Servers = []string{server}
	client, err := sntp.NewClient(config)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	m := queryCommandModel{
		client:  client,
		server:  server,
		compare: compare,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}

	if _, err := ui.Run(m); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

type queryCommandModel struct {
	client  *sntp.Client
	server  string
	compare bool
	spinner spinner.Model

	result string
	err    error
}

type queryResultMessage string
type queryErrorMessage struct{ err error }

func ntpQueryCommand(m queryCommandModel) tea.Cmd {
	return func() tea.Msg {
		result, err := m.client.Query(context.Background())
		if err != nil {
			return queryErrorMessage{err}
		}

		s := fmt.Sprintf("%+.3fms +/- %.3fms %s %s stratum %d",
			1000*result.LocalClockOffset(), 1000*result.RoundTripDelay(), m.server, result.Address.IP, result.Stratum)
		s += "\n" + ui.HelpStyle(fmt.Sprintf("server time %s, corrected time %s",
			time.UnixMilli(result.ServerTime()).Format(time.RFC3339Nano),
			time.UnixMilli(result.CorrectedTime).Format(time.RFC3339Nano)))
		s += "\n" + ui.HelpStyle(fmt.Sprintf("reference %q at %s, root delay %.3fms, root dispersion %.3fms, precision %.3gs",
			string(result.ReferenceID[:]), result.ReferenceTime.Format(time.RFC3339), 1000*result.RootDelay,
			1000*result.RootDispersion, result.Precision))

		if m.compare {
			s += "\n" + compareQuery(m.client.Config(), m.server, result)
		}
		return queryResultMessage(s)
	}
}

// compareQuery repeats the query with beevik/ntp and reports the offset
// difference between both implementations.
func compareQuery(config sntp.Config, server string, result *sntp.Result) string {
	address := server
	if _, _, err := net.SplitHostPort(server); err != nil {
		address = net.JoinHostPort(server, config.Port)
	}

	response, err := ntp.QueryWithOptions(address, ntp.QueryOptions{
		Timeout: config.SocketTimeout,
		Version: config.Version,
	})
	if err != nil {
		return ui.ErrorStyle(fmt.Sprintf("beevik/ntp: %v", err))
	}
	if err := response.Validate(); err != nil {
		return ui.ErrorStyle(fmt.Sprintf("beevik/ntp: invalid response: %v", err))
	}

	return fmt.Sprintf("beevik/ntp %+.3fms +/- %.3fms stratum %d, difference %v",
		1000*response.ClockOffset.Seconds(), 1000*response.RTT.Seconds(), response.Stratum,
		(response.ClockOffset - result.Offset()).Round(time.Microsecond))
}

func (m queryCommandModel) Init() tea.Cmd {
	return tea.Batch(ntpQueryCommand(m), m.spinner.Tick)
}

func (m queryCommandModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case queryResultMessage:
		m.result = string(msg)
		return m, tea.Quit
	case queryErrorMessage:
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m queryCommandModel) View() (s string) {
	if m.err != nil {
		return
	}

	if m.result == "" {
		s += ui.TitleStyle("Countdown - Query") + "\n\n"
		s += m.spinner.View() + " " + m.server + "\n\n"
		s += ui.HelpStyle("q: exit") + "\n"
	} else {
		s += m.result + "\n"
	}
	return
}

func (m queryCommandModel) Err() error {
	return m.err
}
