// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/dinfox/pkg/boards"
	"github.com/Thermoquad/dinfox/pkg/bus"
	"github.com/Thermoquad/dinfox/pkg/node"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	pollInterval   = 2 * time.Second // register refresh of the selected node
	pollTimeout    = 10 * time.Second
	commandTimeout = 30 * time.Second // covers GPS and radio commands
)

// Focus states
const (
	focusNodeList = iota
	focusCommandInput
	focusMeasureButton
	focusRebootButton
	focusCount
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// nodeEntry is a node found on the bus
type nodeEntry struct {
	address    uint8
	board      node.BoardID
	identified bool
	values     []uint32
	failed     map[uint8]bool
	lastPoll   time.Time
	pollErr    error
}

// Implement list.Item interface
func (d nodeEntry) Title() string { return fmt.Sprintf("Node 0x%02X", d.address) }
func (d nodeEntry) Description() string {
	if !d.identified {
		return "identifying..."
	}
	return d.board.String()
}
func (d nodeEntry) FilterValue() string { return fmt.Sprintf("%02X", d.address) }

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	connMgr  *connectionManager
	connInfo string

	// Nodes
	nodes    []nodeEntry
	nodeList list.Model

	discoveryDone bool
	polling       bool

	errorLog      []errorLogEntry
	maxLogEntries int

	// Control
	commandInput textinput.Model
	focusedField int

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type nodeFoundMsg struct {
	address uint8
}

type nodeIdentifiedMsg struct {
	address uint8
	board   node.BoardID
}

type discoveryCompleteMsg struct{}

type connectionLostMsg struct{}

type reconnectedMsg struct {
	connInfo string
}

type registersMsg struct {
	address uint8
	values  []uint32
	failed  map[uint8]bool
	err     error
}

type commandResultMsg struct {
	address uint8
	line    string
	lines   []string
	err     error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(connMgr *connectionManager, connInfo string) controlModel {
	ti := textinput.New()
	ti.Placeholder = "AT$V?"
	ti.CharLimit = bus.LineCapacity
	ti.Width = 30

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	nodeList := list.New([]list.Item{}, delegate, 30, 10)
	nodeList.Title = "Nodes"
	nodeList.SetShowStatusBar(false)
	nodeList.SetShowHelp(false)
	nodeList.SetFilteringEnabled(false)

	return controlModel{
		connMgr:       connMgr,
		connInfo:      connInfo,
		nodes:         make([]nodeEntry, 0),
		nodeList:      nodeList,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		commandInput:  ti,
		focusedField:  focusNodeList,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionRelease && msg.Button == tea.MouseButtonLeft {
			m.nodeList, _ = m.nodeList.Update(msg)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		if cmd := m.maybePoll(); cmd != nil {
			cmds = append(cmds, cmd)
		}
		cmds = append(cmds, controlTickCmd())
		return m, tea.Batch(cmds...)

	case nodeFoundMsg:
		if m.find(msg.address) == nil {
			m.nodes = append(m.nodes, nodeEntry{address: msg.address})
			m.updateNodeList()
			m.addLogEntry(fmt.Sprintf("Node found at 0x%02X", msg.address), false)
		}

	case nodeIdentifiedMsg:
		if n := m.find(msg.address); n != nil {
			n.board = msg.board
			n.identified = true
			m.updateNodeList()
		}

	case discoveryCompleteMsg:
		m.discoveryDone = true
		m.addLogEntry(fmt.Sprintf("Discovery complete: %d node(s)", len(m.nodes)), false)

	case registersMsg:
		m.polling = false
		if n := m.find(msg.address); n != nil {
			n.values = msg.values
			n.failed = msg.failed
			n.lastPoll = time.Now()
			if msg.err != nil && (n.pollErr == nil || n.pollErr.Error() != msg.err.Error()) {
				m.addLogEntry(fmt.Sprintf("Node 0x%02X: %v", msg.address, msg.err), true)
			}
			n.pollErr = msg.err
		}

	case commandResultMsg:
		for _, l := range msg.lines {
			m.addLogEntry(fmt.Sprintf("0x%02X: %s", msg.address, l), false)
		}
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("0x%02X %s: %v", msg.address, msg.line, msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("0x%02X %s: OK", msg.address, msg.line), false)
		}
		// Force a refresh of the fields
		if n := m.find(msg.address); n != nil {
			n.lastPoll = time.Time{}
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry("Connection lost - reconnecting...", true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.resetDiscovery()
		m.addLogEntry("Reconnected - starting discovery", false)
	}

	var cmd tea.Cmd
	if m.focusedField == focusCommandInput {
		m.commandInput, cmd = m.commandInput.Update(msg)
		cmds = append(cmds, cmd)
	}
	if m.focusedField == focusNodeList {
		m.nodeList, cmd = m.nodeList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return *m, tea.Quit

	case "q":
		if m.focusedField != focusCommandInput {
			m.quitting = true
			return *m, tea.Quit
		}

	case "tab":
		m.cycleFocus(1)
		return *m, nil

	case "shift+tab":
		m.cycleFocus(-1)
		return *m, nil

	case "enter":
		if m.discoveryDone {
			cmd := m.handleEnter()
			return *m, cmd
		}
		return *m, nil

	case "up", "k", "down", "j":
		if m.focusedField == focusNodeList {
			m.nodeList, _ = m.nodeList.Update(msg)
			return *m, nil
		}
	}

	if m.focusedField == focusCommandInput {
		var cmd tea.Cmd
		m.commandInput, cmd = m.commandInput.Update(msg)
		return *m, cmd
	}
	return *m, nil
}

func (m *controlModel) cycleFocus(delta int) {
	if !m.discoveryDone || m.selected() == nil {
		m.focusedField = focusNodeList
		return
	}

	m.focusedField = (m.focusedField + delta + focusCount) % focusCount
	if m.focusedField == focusCommandInput {
		m.commandInput.Focus()
	} else {
		m.commandInput.Blur()
	}
}

func (m *controlModel) handleEnter() tea.Cmd {
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return nil
	}
	selected := m.selected()
	if selected == nil {
		return nil
	}

	var line string
	switch m.focusedField {
	case focusCommandInput:
		line = strings.TrimSpace(m.commandInput.Value())
		if line == "" {
			line = m.commandInput.Placeholder
		}
		m.commandInput.SetValue("")
	case focusMeasureButton:
		line = fmt.Sprintf("AT$W=%02X,%08X,%08X", node.AddrControl0, node.MaskMTRG, node.MaskMTRG)
	case focusRebootButton:
		line = "AT$RST"
	default:
		return nil
	}

	m.addLogEntry(fmt.Sprintf("Sent %s to 0x%02X", line, selected.address), false)
	return commandCmd(m.connMgr.getMaster(), selected.address, line)
}

// maybePoll starts a register refresh of the selected node when due
func (m *controlModel) maybePoll() tea.Cmd {
	if !m.discoveryDone || m.polling || m.connectionLost {
		return nil
	}
	selected := m.selected()
	if selected == nil || !selected.identified || time.Since(selected.lastPoll) < pollInterval {
		return nil
	}
	m.polling = true
	return pollCmd(m.connMgr.getMaster(), selected.address, selected.board)
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

func pollCmd(master *bus.Master, addr uint8, board node.BoardID) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
		defer cancel()

		layout := boards.Layout(board)
		msg := registersMsg{
			address: addr,
			values:  make([]uint32, len(layout)),
			failed:  make(map[uint8]bool),
		}
		for i := range layout {
			v, err := master.ReadRegister(ctx, addr, uint8(i))
			if err != nil {
				msg.failed[uint8(i)] = true
				msg.err = err
				if ctx.Err() != nil {
					break
				}
				continue
			}
			msg.values[i] = v
		}
		return msg
	}
}

func commandCmd(master *bus.Master, addr uint8, line string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		lines, err := master.Command(ctx, addr, line)
		return commandResultMsg{address: addr, line: line, lines: lines, err: err}
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
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

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	focusedButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	// Header
	helpText := "q=quit"
	if m.discoveryDone {
		helpText = "q=quit Tab=switch Enter=send"
	}
	s.WriteString(titleStyle.Render("DINFOX CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | %s", connStatus, helpText)))
	s.WriteString("\n\n")

	if !m.discoveryDone {
		s.WriteString(warningStyle.Render("Scanning the bus..."))
		s.WriteString("\n")
		s.WriteString(fmt.Sprintf("Found: %d node(s)\n\n", len(m.nodes)))
		s.WriteString(m.renderEventLog(labelStyle, headerStyle, warningStyle, errorStyle, boxStyle))
		return s.String()
	}

	// Layout: left panel (nodes) | right panel (control and fields)
	leftWidth := 30
	rightWidth := max(m.width-leftWidth-6, 20)

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusNodeList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	nodePanel := listStyle.Render(m.nodeList.View())

	controlPanel := boxStyle.Width(rightWidth).Render(
		m.renderControlPanel(labelStyle, valueStyle, headerStyle, errorStyle, buttonStyle, focusedButtonStyle))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, nodePanel, " ", controlPanel))
	s.WriteString("\n")
	s.WriteString(m.renderStatisticsBar(labelStyle, valueStyle, errorStyle, boxStyle))
	s.WriteString("\n")
	s.WriteString(m.renderEventLog(labelStyle, headerStyle, warningStyle, errorStyle, boxStyle))

	return s.String()
}

func (m controlModel) renderControlPanel(labelStyle, valueStyle, headerStyle, errorStyle, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	selected := m.selected()
	if selected == nil {
		s.WriteString(headerStyle.Render("No node selected"))
		return s.String()
	}

	s.WriteString(fmt.Sprintf("%s Node 0x%02X %s\n", labelStyle.Render("Selected:"), selected.address,
		valueStyle.Render(selected.Description())))

	s.WriteString(labelStyle.Render("Command: "))
	if m.focusedField == focusCommandInput {
		s.WriteString(m.commandInput.View())
	} else {
		val := m.commandInput.Value()
		if val == "" {
			val = m.commandInput.Placeholder
		}
		s.WriteString(fmt.Sprintf("[%s]", val))
	}
	s.WriteString("\n\n")

	button := func(text string, focus int) string {
		if m.focusedField == focus {
			return focusedButtonStyle.Render(text)
		}
		return buttonStyle.Render(text)
	}
	s.WriteString(button("[ Measure ]", focusMeasureButton))
	s.WriteString("  ")
	s.WriteString(button("[ Reboot ]", focusRebootButton))
	s.WriteString("\n\n")

	if selected.values == nil {
		s.WriteString(headerStyle.Render("Waiting for register values..."))
		return s.String()
	}

	// Fields in two columns
	var lines []string
	for _, f := range boards.Fields(selected.board) {
		if int(f.Addr) >= len(selected.values) {
			continue
		}
		value := valueStyle.Render(f.Format(selected.values[f.Addr]))
		if selected.failed[f.Addr] {
			value = errorStyle.Render("?")
		}
		lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render(f.Name+":"), value))
	}
	rows := max(m.height-22, 4)
	var columns []string
	for start := 0; start < len(lines) && len(columns) < 3; start += rows {
		end := min(start+rows, len(lines))
		columns = append(columns, lipgloss.NewStyle().Width(34).Render(strings.Join(lines[start:end], "\n")))
	}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, columns...))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("updated %s", selected.lastPoll.Format("15:04:05"))))

	return s.String()
}

func (m controlModel) renderStatisticsBar(labelStyle, valueStyle, errorStyle, boxStyle lipgloss.Style) string {
	snap := m.connMgr.getMaster().Statistics().Snapshot()

	errors := snap.Truncated + snap.Interrupted + snap.TransmitErrors
	errorText := valueStyle.Render("0")
	if errors > 0 {
		errorText = errorStyle.Render(fmt.Sprintf("%d", errors))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Frames:"), valueStyle.Render(fmt.Sprintf("%d", snap.TotalFrames)),
		labelStyle.Render("Replies:"), valueStyle.Render(fmt.Sprintf("%d", snap.Replies)),
		labelStyle.Render("Errors:"), errorText,
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f frames/s", snap.FrameRate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderEventLog(labelStyle, headerStyle, warningStyle, errorStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	logHeight := min(len(m.errorLog), 8)
	startIdx := len(m.errorLog) - logHeight

	if len(m.errorLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			icon, style := "i", warningStyle
			if entry.isError {
				icon, style = "x", errorStyle
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.errorLog = append(m.errorLog, errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m *controlModel) find(addr uint8) *nodeEntry {
	for i := range m.nodes {
		if m.nodes[i].address == addr {
			return &m.nodes[i]
		}
	}
	return nil
}

func (m *controlModel) selected() *nodeEntry {
	idx := m.nodeList.Index()
	if idx < 0 || idx >= len(m.nodes) {
		return nil
	}
	return &m.nodes[idx]
}

func (m *controlModel) resetDiscovery() {
	m.discoveryDone = false
	m.polling = false
	m.nodes = make([]nodeEntry, 0)
	m.focusedField = focusNodeList
	m.commandInput.Blur()
	m.updateNodeList()
}

func (m *controlModel) updateNodeList() {
	items := make([]list.Item, len(m.nodes))
	for i, n := range m.nodes {
		items[i] = n
	}
	m.nodeList.SetItems(items)
}

func (m *controlModel) updateListSize() {
	m.nodeList.SetSize(28, max(m.height/3, 5))
}
