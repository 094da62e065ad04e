// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Thermoquad/fhtstat/pkg/aggregator"
	"github.com/Thermoquad/fhtstat/pkg/fht"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for problems, false for informational readings
}

// TUI model
type model struct {
	connInfo      string
	keepCount     int
	showAll       bool
	statsFn       func() fht.Statistics
	snapshotFn    func() aggregator.Snapshot
	stats         fht.Statistics
	rooms         table.Model
	filter        textinput.Model
	eventLog      []eventLogEntry
	maxLogEntries int
	closed        bool
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type readingMsg struct {
	reading fht.Reading
}
type frameErrorMsg struct {
	err error
}
type closedMsg struct{}

var roomColumns = []table.Column{
	{Title: "Room", Width: 16},
	{Title: "Valves", Width: 8},
	{Title: "Desired", Width: 8},
	{Title: "Measured", Width: 9},
	{Title: "Warning", Width: 12},
	{Title: "Last Seen", Width: 10},
}

func initialModel(connInfo string, keepCount int, showAll bool,
	statsFn func() fht.Statistics, snapshotFn func() aggregator.Snapshot) model {
	t := table.New(
		table.WithColumns(roomColumns),
		table.WithFocused(false),
		table.WithHeight(6),
	)

	filter := textinput.New()
	filter.Prompt = "/"
	filter.Placeholder = "filter events"
	filter.CharLimit = 32

	return model{
		connInfo:      connInfo,
		keepCount:     keepCount,
		showAll:       showAll,
		statsFn:       statsFn,
		snapshotFn:    snapshotFn,
		rooms:         t,
		filter:        filter,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.filter.Focused() {
			switch msg.String() {
			case "enter":
				m.filter.Blur()
				return m, nil
			case "esc":
				m.filter.SetValue("")
				m.filter.Blur()
				return m, nil
			}
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "/":
			return m, m.filter.Focus()
		case "r":
			m.refresh()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.refresh()
		return m, tickCmd()

	case readingMsg:
		r := msg.reading
		if isProblem(&r) {
			m.addLogEntry(describeProblem(&r), true)
		} else if m.showAll {
			m.addLogEntry(strings.TrimSuffix(fht.FormatReading(&r), "\n"), false)
		}

	case frameErrorMsg:
		m.addLogEntry("FRAME ERROR: "+describeFrameError(msg.err), true)

	case closedMsg:
		m.closed = true
		m.addLogEntry("Connection closed", true)
	}

	return m, nil
}

// refresh pulls fresh statistics and room state
func (m *model) refresh() {
	if m.statsFn != nil {
		m.stats = m.statsFn()
	}
	if m.snapshotFn != nil {
		m.rooms.SetRows(roomRows(m.snapshotFn(), time.Now()))
	}
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// visibleEvents returns the log entries matching the filter
func (m *model) visibleEvents() []eventLogEntry {
	needle := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	if needle == "" {
		return m.eventLog
	}
	var out []eventLogEntry
	for _, e := range m.eventLog {
		if strings.Contains(strings.ToLower(e.message), needle) {
			out = append(out, e)
		}
	}
	return out
}

// roomRows renders the latest state of every room, one row per room
func roomRows(snap aggregator.Snapshot, now time.Time) []table.Row {
	names := make([]string, 0, len(snap.Rooms))
	for name := range snap.Rooms {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]table.Row, 0, len(names))
	for _, name := range names {
		row := table.Row{name, "-", "-", "-", "-", "-"}

		if e, ok := snap.Latest(name, fht.MetricAllValves); ok {
			row[1] = fmt.Sprintf("%.0f%%", e.Value)
		}
		if e, ok := snap.Latest(name, fht.MetricDesiredTemp); ok {
			row[2] = fmt.Sprintf("%.1f°C", e.Value)
		}
		low, okLow := snap.Latest(name, fht.MetricMeasuredLow)
		high, okHigh := snap.Latest(name, fht.MetricMeasuredHigh)
		if okLow && okHigh {
			row[3] = fmt.Sprintf("%.1f°C", low.Value+high.Value)
		}
		if e, ok := snap.Latest(name, fht.MetricWarnings); ok {
			row[4] = e.Warning
		}

		var last time.Time
		for _, history := range snap.Rooms[name] {
			if n := len(history); n > 0 && history[n-1].Time.After(last) {
				last = history[n-1].Time
			}
		}
		if !last.IsZero() {
			row[5] = formatAge(now.Sub(last))
		}

		rows = append(rows, row)
	}
	return rows
}

// formatAge renders a duration as a short "ago" string
func formatAge(d time.Duration) string {
	switch {
	case d < time.Second:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("FHTSTAT - MONITOR"))
	s.WriteString("\n")
	mode := "Problems only"
	if m.showAll {
		mode = "All readings"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | History: %d | '/' filter, 'q' quit",
		m.connInfo, mode, m.keepCount)))
	s.WriteString("\n\n")

	if m.closed {
		s.WriteString(errorStyle.Render("✗ Connection closed"))
		s.WriteString("\n\n")
	}

	// Statistics
	st := m.stats
	var cleanPercent float64
	if st.TotalFrames > 0 {
		cleanPercent = float64(st.CleanFrames) * 100.0 / float64(st.TotalFrames)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", st.TotalFrames)),
		statsLabelStyle.Render("Clean:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.CleanFrames, cleanPercent)),
		statsLabelStyle.Render("Frame Errors:"), errorStyle.Render(fmt.Sprintf("%d", st.FrameErrors)),
		statsLabelStyle.Render("Anomalies:"), warningStyle.Render(fmt.Sprintf("%d", st.Anomalies)),
	))

	if st.Anomalies > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %d, %s %d, %s %d, %s %d\n",
			headerStyle.Render("new rooms"), st.NewRooms,
			headerStyle.Render("new metrics"), st.NewMetrics,
			headerStyle.Render("new commands"), st.NewCommands,
			headerStyle.Render("new warnings"), st.NewWarnings,
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.2f frames/s", st.FrameRate)),
		statsLabelStyle.Render("Anomaly Rate:"), func() string {
			if st.AnomalyRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.2f /s", st.AnomalyRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.2f /s", st.AnomalyRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Rooms
	s.WriteString(statsLabelStyle.Render("Rooms:"))
	s.WriteString("\n")
	if len(m.rooms.Rows()) == 0 {
		s.WriteString(boxStyle.Render(headerStyle.Render("(no rooms heard yet)")))
	} else {
		s.WriteString(boxStyle.Render(m.rooms.View()))
	}
	s.WriteString("\n\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	if m.filter.Focused() || m.filter.Value() != "" {
		s.WriteString(" ")
		s.WriteString(m.filter.View())
	}
	s.WriteString("\n")

	logHeight := m.height - 24 // Reserve space for header, stats and rooms
	if logHeight < 5 {
		logHeight = 5
	}

	events := m.visibleEvents()
	startIdx := len(events) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	logContent := strings.Builder{}
	if len(events) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for _, entry := range events[startIdx:] {
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
