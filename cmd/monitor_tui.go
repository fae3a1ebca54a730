// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/dinfox/pkg/bus"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUI model
type model struct {
	connInfo      string
	mode          bus.Mode
	showAll       bool
	stats         *bus.Statistics
	monitor       *busMonitor
	errorLog      []errorLogEntry
	maxLogEntries int
	synchronized  bool
	linkErr       error
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type linkDownMsg struct {
	err error
}

// formatUptime formats a duration in milliseconds to a human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(connInfo string, mode bus.Mode, showAll bool) model {
	return model{
		connInfo:      connInfo,
		mode:          mode,
		showAll:       showAll,
		stats:         bus.NewStatistics(),
		monitor:       newBusMonitor(masterAddress, replyWindow),
		errorLog:      make([]errorLogEntry, 0),
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
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		for _, e := range m.monitor.expire(time.Time(msg)) {
			m.errorLog = append(m.errorLog, e)
		}
		m.trimLog()
		return m, tickCmd()

	case linkDownMsg:
		m.linkErr = msg.err
		m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)

	case frameMsg:
		m.stats.Update(msg.frame, msg.decodeErr)
		if msg.frame != nil && msg.decodeErr == nil && !m.synchronized {
			m.synchronized = true
			m.addLogEntry("Synchronized", false)
		}
		for _, e := range m.monitor.observe(msg.frame, msg.decodeErr, time.Now()) {
			if e.isError || m.showAll {
				m.errorLog = append(m.errorLog, e)
			}
		}
		if m.showAll && msg.frame != nil && msg.decodeErr == nil {
			f := msg.frame
			m.addLogEntry(fmt.Sprintf("%s %s -> %s %q", bus.FormatDirection(f),
				bus.FormatAddress(f.Source), bus.FormatAddress(f.Destination), f.Line), false)
		}
		m.trimLog()
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	m.errorLog = append(m.errorLog, errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	m.trimLog()
}

// trimLog keeps only the last maxLogEntries entries
func (m *model) trimLog() {
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
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

	snap := m.stats.Snapshot()

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("DINFOX - BUS MONITOR"))
	s.WriteString("\n")
	filter := "Errors only"
	if m.showAll {
		filter = "All frames"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | %s framing | %s | Up %s | 'r' reset, 'q' quit",
		m.connInfo, m.mode, filter, formatUptime(uint64(time.Since(snap.StartTime).Milliseconds())))))
	s.WriteString("\n\n")

	switch {
	case m.linkErr != nil:
		s.WriteString(errorStyle.Render(fmt.Sprintf("Connection lost: %v", m.linkErr)))
	case !m.synchronized:
		s.WriteString(warningStyle.Render("Waiting for a first frame..."))
	default:
		s.WriteString(statsValueStyle.Render("Synchronized"))
	}
	s.WriteString("\n\n")

	// Statistics
	var validPercent float64
	errorCount := snap.Truncated + snap.Interrupted
	if snap.TotalFrames > 0 {
		validPercent = float64(snap.ValidFrames) * 100.0 / float64(snap.TotalFrames)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", snap.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", snap.ValidFrames, validPercent)),
		statsLabelStyle.Render("Framing errors:"), errorStyle.Render(fmt.Sprintf("%d", errorCount)),
	))
	statsContent.WriteString(fmt.Sprintf("%s %d   %s %d   %s %d\n",
		statsLabelStyle.Render("Requests:"), snap.Requests,
		statsLabelStyle.Render("Replies:"), snap.Replies,
		statsLabelStyle.Render("Broadcasts:"), snap.Broadcasts,
	))
	if errorCount > 0 {
		statsContent.WriteString(fmt.Sprintf("%s (%s: %d, %s: %d)\n",
			statsLabelStyle.Render("Framing:"),
			headerStyle.Render("truncated"), snap.Truncated,
			headerStyle.Render("interrupted"), snap.Interrupted,
		))
	}
	errorRate := statsValueStyle.Render(fmt.Sprintf("%.1f err/s", snap.ErrorRate))
	if snap.ErrorRate > 0 {
		errorRate = errorStyle.Render(fmt.Sprintf("%.1f err/s", snap.ErrorRate))
	}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", snap.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), errorRate,
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Nodes
	if nodes := m.monitor.activity(); len(nodes) > 0 {
		s.WriteString(statsLabelStyle.Render("Nodes:"))
		s.WriteString("\n")
		nodeContent := strings.Builder{}
		for i, n := range nodes {
			if i > 0 {
				nodeContent.WriteString("\n")
			}
			nodeContent.WriteString(fmt.Sprintf("%s  req %-5d rep %-5d ",
				statsLabelStyle.Render(bus.FormatAddress(n.address)), n.requests, n.replies))
			if n.errors > 0 || n.timeouts > 0 {
				nodeContent.WriteString(errorStyle.Render(fmt.Sprintf("err %-4d timeout %-4d", n.errors, n.timeouts)))
			} else {
				nodeContent.WriteString(statsValueStyle.Render("healthy"))
			}
			if n.lastError != 0 {
				nodeContent.WriteString(headerStyle.Render(fmt.Sprintf("  last %s", bus.FormatErrorReply(n.lastError))))
			}
		}
		s.WriteString(boxStyle.Render(nodeContent.String()))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := max(m.height-18, 5)

	logContent := strings.Builder{}
	startIdx := max(len(m.errorLog)-logHeight, 0)

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			style, icon := warningStyle, "i "
			if entry.isError {
				style, icon = errorStyle, "x "
			}
			logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), style.Render(icon+entry.message)))
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
