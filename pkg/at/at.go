// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package at implements the textual command interpreter of a node. Commands
// are matched in table order and the first match wins. Every handler is
// built from external register accesses on the node, so commands go through
// the same access checks and validation as a remote register write.
package at

import (
	"strings"

	"github.com/Thermoquad/dinfox/pkg/boards"
	"github.com/Thermoquad/dinfox/pkg/bus"
	"github.com/Thermoquad/dinfox/pkg/node"
	"github.com/Thermoquad/dinfox/pkg/register"
	"github.com/Thermoquad/dinfox/pkg/status"
)

// Errors
var (
	ErrUnknownCommand    = status.New(status.BaseAT+1, "unknown command")
	ErrMissingParameter  = status.New(status.BaseAT+2, "missing parameter")
	ErrExtraParameter    = status.New(status.BaseAT+3, "extra parameter")
	ErrInvalidParameter  = status.New(status.BaseAT+4, "invalid parameter")
	ErrParameterOverflow = status.New(status.BaseAT+5, "parameter out of range")
)

// HandlerFunc executes a parsed command and returns its reply lines, not
// including the final OK.
type HandlerFunc func(in *Interpreter, args Args) ([]string, error)

// Command is one entry of the command table. A command without parameters
// matches its prefix exactly; a command with parameters matches any line
// starting with its prefix.
type Command struct {
	Prefix string
	Params []Param
	Run    HandlerFunc
}

// Syntax returns the usage line of the command
func (c Command) Syntax() string {
	if len(c.Params) == 0 {
		return c.Prefix
	}
	var b strings.Builder
	b.WriteString(c.Prefix)
	for i, p := range c.Params {
		sep := ""
		if i > 0 {
			sep = ","
		}
		if p.Optional {
			b.WriteString("[" + sep + "<" + p.Name + ">]")
		} else {
			b.WriteString(sep + "<" + p.Name + ">")
		}
	}
	return b.String()
}

func (c Command) match(line string) (string, bool) {
	if len(c.Params) == 0 {
		return "", line == c.Prefix
	}
	if !strings.HasPrefix(line, c.Prefix) {
		return "", false
	}
	return line[len(c.Prefix):], true
}

// Interpreter executes command lines against one node.
type Interpreter struct {
	n        *node.Node
	fields   []node.Field
	commands []Command
}

// New creates the interpreter of a node, with the extensions of its board.
func New(n *node.Node) *Interpreter {
	in := &Interpreter{
		n:      n,
		fields: boards.Fields(n.Board()),
	}
	in.commands = append(in.commands, commonCommands...)
	in.commands = append(in.commands, extensions[n.Board()]...)
	return in
}

// Node returns the node the interpreter drives
func (in *Interpreter) Node() *node.Node {
	return in.n
}

// Commands returns the command table in match order
func (in *Interpreter) Commands() []Command {
	return in.commands
}

// Execute runs one command line. The reply always ends with OK or a single
// ERROR_<code> line.
func (in *Interpreter) Execute(line string) []string {
	for _, c := range in.commands {
		text, ok := c.match(line)
		if !ok {
			continue
		}
		args, err := parseArgs(c.Params, text)
		if err != nil {
			return []string{bus.FormatErrorReply(status.CodeOf(err, status.BaseAT))}
		}
		replies, err := c.Run(in, args)
		if err != nil {
			in.n.Logger().Debug("command failed", "line", line, "error", err)
			return append(replies, bus.FormatErrorReply(status.CodeOf(err, status.BaseAT)))
		}
		return append(replies, bus.ReplyOK)
	}
	return []string{bus.FormatErrorReply(ErrUnknownCommand.Code)}
}

// Address returns the bus address of the node
func (in *Interpreter) Address() uint8 {
	return in.n.Address()
}

// Handle executes a line received by a bus endpoint
func (in *Interpreter) Handle(line string) []string {
	return in.Execute(line)
}

// Overflow records a discarded line on the error stack
func (in *Interpreter) Overflow(err error) {
	in.n.Errors().Push(status.CodeOf(err, status.BaseBus))
}

// Idle performs the software reset requested by the last command, once its
// reply has been sent.
func (in *Interpreter) Idle() {
	if !in.n.ResetPending() {
		return
	}
	if err := in.n.Reboot(); err != nil {
		in.n.Logger().Error("reboot failed", "error", err)
	}
}

// field returns the field of the node board with the given name
func (in *Interpreter) field(name string) node.Field {
	for _, f := range in.fields {
		if f.Name == name {
			return f
		}
	}
	return node.Field{Name: name, Mask: 0xFFFFFFFF}
}

// format reads register addr externally and formats its fields as
// NAME=value lines.
func (in *Interpreter) format(addr uint8, fields []node.Field) ([]string, error) {
	reg, err := in.n.Read(register.External, addr)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		lines = append(lines, f.Name+"="+f.Format(reg))
	}
	return lines, nil
}
