// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/Thermoquad/dinfox/pkg/bus"
	"github.com/Thermoquad/dinfox/pkg/status"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
	replyWindow   time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Detect and analyze bus errors",
	Long: `Watch the bus passively and track failed exchanges with statistics.

This command decodes every frame and detects:
  - Framing errors (truncated lines, interrupted frames)
  - Error replies (ERROR_<code>), decoded into subsystem and local code
  - Requests left without a terminal reply within --reply-window
  - Per-node activity (requests, replies, errors, last error)

By default, only errors are displayed. Use --show-all to display every frame.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
	monitorCmd.Flags().DurationVar(&replyWindow, "reply-window", 2*time.Second, "Time a request may wait for its terminal reply")
}

// errorLogEntry is one line of the event log
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for information
}

// nodeActivity summarizes the traffic of one node address
type nodeActivity struct {
	address   uint8
	requests  int
	replies   int
	errors    int
	timeouts  int
	lastError status.Code
	lastSeen  time.Time
}

type pendingRequest struct {
	line string
	sent time.Time
}

// busMonitor pairs requests with replies on a passively observed bus.
type busMonitor struct {
	master  uint8
	window  time.Duration
	nodes   map[uint8]*nodeActivity
	pending map[uint8]pendingRequest
}

func newBusMonitor(master uint8, window time.Duration) *busMonitor {
	return &busMonitor{
		master:  master,
		window:  window,
		nodes:   make(map[uint8]*nodeActivity),
		pending: make(map[uint8]pendingRequest),
	}
}

func (m *busMonitor) node(addr uint8) *nodeActivity {
	n, ok := m.nodes[addr]
	if !ok {
		n = &nodeActivity{address: addr}
		m.nodes[addr] = n
	}
	return n
}

// observe accounts one decoder result and returns the events it raises.
func (m *busMonitor) observe(f *bus.Frame, decodeErr error, now time.Time) []errorLogEntry {
	var events []errorLogEntry
	add := func(isError bool, format string, args ...any) {
		events = append(events, errorLogEntry{timestamp: now, message: fmt.Sprintf(format, args...), isError: isError})
	}

	if decodeErr != nil {
		if f != nil {
			add(true, "%s -> %s: line truncated", bus.FormatAddress(f.Source), bus.FormatAddress(f.Destination))
		} else {
			add(true, "framing: %v", decodeErr)
		}
		return events
	}
	if f == nil {
		return nil
	}

	switch {
	case f.IsBroadcast():
		add(false, "broadcast %q", f.Line)

	case f.Destination == m.master:
		n := m.node(f.Source)
		n.replies++
		n.lastSeen = now
		req, waiting := m.pending[f.Source]
		if code, ok := bus.ParseErrorReply(f.Line); ok {
			n.errors++
			n.lastError = code
			delete(m.pending, f.Source)
			add(true, "%s replied %s to %q (%s)", bus.FormatAddress(f.Source), f.Line, req.line, describeCode(code))
		} else if f.Line == bus.ReplyOK {
			delete(m.pending, f.Source)
		} else if !waiting {
			add(true, "%s sent %q with no request pending", bus.FormatAddress(f.Source), f.Line)
		}

	default:
		n := m.node(f.Destination)
		n.requests++
		if prev, ok := m.pending[f.Destination]; ok {
			n.timeouts++
			add(true, "%s never completed %q", bus.FormatAddress(f.Destination), prev.line)
		}
		m.pending[f.Destination] = pendingRequest{line: f.Line, sent: now}
	}
	return events
}

// expire reports the requests older than the reply window.
func (m *busMonitor) expire(now time.Time) []errorLogEntry {
	var events []errorLogEntry
	for addr, req := range m.pending {
		if now.Sub(req.sent) < m.window {
			continue
		}
		m.node(addr).timeouts++
		delete(m.pending, addr)
		events = append(events, errorLogEntry{
			timestamp: now,
			message:   fmt.Sprintf("%s: no reply to %q", bus.FormatAddress(addr), req.line),
			isError:   true,
		})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].message < events[j].message })
	return events
}

// activity returns the node summaries in address order.
func (m *busMonitor) activity() []nodeActivity {
	out := make([]nodeActivity, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].address < out[j].address })
	return out
}

// frameMsg carries one decoder result to the TUI
type frameMsg struct {
	frame     *bus.Frame
	decodeErr error
}

func runMonitor(cmd *cobra.Command, args []string) error {
	mode, err := parseMode()
	if err != nil {
		return err
	}
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	if useTUI {
		return runTUIMode(conn, connInfo, mode)
	}
	return runTextMode(conn, connInfo, mode)
}

// readFrames decodes the connection and hands every result to emit until
// the connection fails.
func readFrames(conn io.Reader, mode bus.Mode, emit func(*bus.Frame, error)) error {
	decoder := bus.NewDecoder(mode)
	buf := make([]byte, 128)
	for {
		n, err := conn.Read(buf)
		for i := 0; i < n; i++ {
			frame, decodeErr := decoder.DecodeByte(buf[i])
			if frame != nil || decodeErr != nil {
				emit(frame, decodeErr)
			}
		}
		if err != nil {
			return err
		}
	}
}

// runTUIMode runs the monitor in TUI mode
func runTUIMode(conn Connection, connInfo string, mode bus.Mode) error {
	m := initialModel(connInfo, mode, showAll)
	p := tea.NewProgram(m)

	go func() {
		err := readFrames(conn, mode, func(f *bus.Frame, err error) {
			p.Send(frameMsg{frame: f, decodeErr: err})
		})
		p.Send(linkDownMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runTextMode runs the monitor in text mode
func runTextMode(conn Connection, connInfo string, mode bus.Mode) error {
	fmt.Printf("dinfox - Bus Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := bus.NewStatistics()
	monitor := newBusMonitor(masterAddress, replyWindow)

	frames := make(chan frameMsg, 64)
	linkErr := make(chan error, 1)
	go func() {
		linkErr <- readFrames(conn, mode, func(f *bus.Frame, err error) {
			frames <- frameMsg{frame: f, decodeErr: err}
		})
	}()

	statsTicker := time.NewTicker(time.Duration(max(statsInterval, 1)) * time.Second)
	defer statsTicker.Stop()
	expireTicker := time.NewTicker(100 * time.Millisecond)
	defer expireTicker.Stop()

	printEvents := func(events []errorLogEntry) {
		for _, e := range events {
			if e.isError {
				fmt.Printf("[%s] \033[1;31mERROR:\033[0m %s\n", e.timestamp.Format("15:04:05.000"), e.message)
			} else if showAll {
				fmt.Printf("[%s] %s\n", e.timestamp.Format("15:04:05.000"), e.message)
			}
		}
	}

	for {
		select {
		case msg := <-frames:
			stats.Update(msg.frame, msg.decodeErr)
			if showAll && msg.frame != nil && msg.decodeErr == nil {
				fmt.Print(bus.FormatFrame(msg.frame))
			}
			printEvents(monitor.observe(msg.frame, msg.decodeErr, time.Now()))

		case <-expireTicker.C:
			printEvents(monitor.expire(time.Now()))

		case err := <-linkErr:
			fmt.Println()
			fmt.Print(stats.String())
			if errors.Is(err, io.EOF) || errors.Is(err, ErrConnectionClosed) {
				return nil
			}
			return err

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			for _, n := range monitor.activity() {
				fmt.Printf("  %s: %d requests, %d replies, %d errors, %d timeouts\n",
					bus.FormatAddress(n.address), n.requests, n.replies, n.errors, n.timeouts)
			}
			fmt.Println()
		}
	}
}
