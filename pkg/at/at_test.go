// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package at

import (
	"fmt"
	"net"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/dinfox/pkg/boards"
	"github.com/Thermoquad/dinfox/pkg/bus"
	"github.com/Thermoquad/dinfox/pkg/driver"
	"github.com/Thermoquad/dinfox/pkg/node"
	"github.com/Thermoquad/dinfox/pkg/register"
	"github.com/Thermoquad/dinfox/pkg/status"
)

// ============================================================================
// Test Helpers
// ============================================================================

type rig struct {
	system *driver.SimSystem
	gps    *driver.SimGPS
	sigfox *driver.SimSigfox
	nvm    *driver.MemNVM
}

func newRig() *rig {
	return &rig{
		system: &driver.SimSystem{Flags: driver.ResetPowerOn},
		gps: &driver.SimGPS{
			Now:     driver.GPSTime{Year: 2025, Month: 6, Date: 21, Hours: 12, Minute: 30, Second: 15},
			Fix:     driver.Position{LatDegrees: 43, LatMinutes: 36, LatSeconds: 12345, North: true, LongDegrees: 1, LongMinutes: 26, LongSeconds: 54321, East: true, AltitudeMeter: 146},
			FixTime: 20 * time.Second,
		},
		sigfox: &driver.SimSigfox{RSSIValue: -110},
		nvm:    driver.NewMemNVM(driver.DefaultNVMSize),
	}
}

func (r *rig) start(t *testing.T, id node.BoardID) *Interpreter {
	t.Helper()
	p, err := boards.New(id, boards.Options{})
	if err != nil {
		t.Fatalf("boards.New(%s): %v", id, err)
	}
	env := node.Env{
		Address: 0x10,
		NVM:     r.nvm,
		Analog: &driver.SimAnalog{Values: map[driver.Channel]int32{
			driver.ChannelVMCU: 3300, driver.ChannelTMCU: 250,
			driver.ChannelVCOM: 12500, driver.ChannelVOUT: 12400, driver.ChannelIOUT: 1500,
			driver.ChannelVGPS: 3300, driver.ChannelVANT: 3000, driver.ChannelVRF: 3300,
		}},
		Power:  driver.NewPowerManager(&driver.SimSwitch{}, 0),
		System: r.system,
		Loads:  map[string]driver.Load{"relay": &driver.SimLoad{}},
		GPS:    r.gps,
		Sigfox: r.sigfox,
	}
	info := node.Info{
		Software: node.Version{Major: 1, Minor: 2, CommitIndex: 3, CommitID: 0xABCDEF, Dirty: true},
		Hardware: node.Hardware{Major: 1, Minor: 0},
	}
	n, err := node.New(p, env, info)
	if err != nil {
		t.Fatalf("node.New(%s): %v", id, err)
	}
	return New(n)
}

// run executes a line and checks the reply ends with OK
func run(t *testing.T, in *Interpreter, line string) []string {
	t.Helper()
	reply := in.Execute(line)
	if len(reply) == 0 || reply[len(reply)-1] != bus.ReplyOK {
		t.Fatalf("%s: reply %q", line, reply)
	}
	return reply[:len(reply)-1]
}

func errorReply(err error) string {
	return bus.FormatErrorReply(status.CodeOf(err, status.BaseAT))
}

// ============================================================================
// Matching and Parameter Tests
// ============================================================================

func TestExecute_Ping(t *testing.T) {
	in := newRig().start(t, node.BoardLVRM)
	if reply := in.Execute("AT"); !slices.Equal(reply, []string{"OK"}) {
		t.Errorf("AT = %q", reply)
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	in := newRig().start(t, node.BoardLVRM)
	for _, line := range []string{"", "at", "ATX", "AT$R", "AT$SO", "AT$TIME=10"} {
		reply := in.Execute(line)
		if !slices.Equal(reply, []string{"ERROR_0201"}) {
			t.Errorf("%q = %q, want ERROR_0201", line, reply)
		}
	}
}

func TestExecute_ParameterErrors(t *testing.T) {
	in := newRig().start(t, node.BoardLVRM)
	tests := []struct {
		line string
		want string
	}{
		{"AT$R=", "ERROR_0202"},
		{"AT$W=08", "ERROR_0202"},
		{"AT$R=07,1", "ERROR_0203"},
		{"AT$W=08,1,2,3", "ERROR_0203"},
		{"AT$R=XY", "ERROR_0204"},
		{"AT$R=-1", "ERROR_0204"},
		{"AT$R=123456789", "ERROR_0205"},
		{"AT$R=100", "ERROR_0205"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if reply := in.Execute(tt.line); !slices.Equal(reply, []string{tt.want}) {
				t.Errorf("reply = %q, want %s", reply, tt.want)
			}
		})
	}
}

func TestParseArgs(t *testing.T) {
	params := []Param{
		{Name: "h", Kind: ParamHex},
		{Name: "d", Kind: ParamDecimal},
		{Name: "b", Kind: ParamBoolean},
		{Name: "data", Kind: ParamBytes, MaxBytes: 4, Optional: true},
	}
	args, err := parseArgs(params, "ff,-12,1,0102A0")
	if err != nil {
		t.Fatalf("parseArgs failed: %v", err)
	}
	if args.Hex(0) != 0xFF || args.Decimal(1) != -12 || !args.Bool(2) {
		t.Errorf("args = %+v", args)
	}
	if !slices.Equal(args.Bytes(3), []byte{0x01, 0x02, 0xA0}) {
		t.Errorf("bytes = % X", args.Bytes(3))
	}

	args, err = parseArgs(params, "1,2,0")
	if err != nil || args.Has(3) || args.Bool(2) {
		t.Errorf("optional parameter: has=%v err=%v", args.Has(3), err)
	}

	bad := []struct {
		text string
		want *status.Error
	}{
		{"1,2,2", ErrInvalidParameter},
		{"1,2,1,010", ErrInvalidParameter},
		{"1,2,1,0102030405", ErrParameterOverflow},
		{"1,99999999999,1", ErrParameterOverflow},
		{"1,,1", ErrMissingParameter},
	}
	for _, tt := range bad {
		if _, err := parseArgs(params, tt.text); status.CodeOf(err, 0) != tt.want.Code {
			t.Errorf("parseArgs(%q) = %v, want %v", tt.text, err, tt.want)
		}
	}
}

func TestExecute_ListsBoardCommands(t *testing.T) {
	lvrm := run(t, newRig().start(t, node.BoardLVRM), "AT?")
	if !slices.Contains(lvrm, "AT$W=<addr>,<value>[,<mask>]") {
		t.Errorf("AT? = %q", lvrm)
	}
	if slices.Contains(lvrm, "AT$SO") {
		t.Error("LVRM lists a radio command")
	}

	uhfm := run(t, newRig().start(t, node.BoardUHFM), "AT?")
	for _, want := range []string{"AT$SO", "AT$SF=<data>[,<bidir>]", "AT$RSSI=<frequency>[,<count>]"} {
		if !slices.Contains(uhfm, want) {
			t.Errorf("UHFM AT? missing %q", want)
		}
	}
	for _, line := range uhfm {
		if len(line) > bus.LineCapacity {
			t.Errorf("line %q exceeds the line capacity", line)
		}
	}
}

// ============================================================================
// Common Command Tests
// ============================================================================

func TestExecute_ReadNodeID(t *testing.T) {
	in := newRig().start(t, node.BoardGPSM)
	lines := run(t, in, "AT$R=07")
	want := []string{"00000410", "NODE_ADDR=0x10", "BOARD_ID=4"}
	if !slices.Equal(lines, want) {
		t.Errorf("AT$R=07 = %q, want %q", lines, want)
	}
}

func TestExecute_OmittedMaskIsFullWrite(t *testing.T) {
	a := newRig().start(t, node.BoardUHFM)
	b := newRig().start(t, node.BoardUHFM)

	for _, in := range []*Interpreter{a, b} {
		run(t, in, "AT$W=10,FFFFFFFF")
	}
	run(t, a, "AT$W=10,12345678")
	run(t, b, "AT$W=10,12345678,FFFFFFFF")

	ra, rb := run(t, a, "AT$R=10"), run(t, b, "AT$R=10")
	if ra[0] != "12345678" || ra[0] != rb[0] {
		t.Errorf("omitted mask %s, full mask %s", ra[0], rb[0])
	}

	run(t, a, "AT$W=10,000000AB,000000FF")
	if got := run(t, a, "AT$R=10")[0]; got != "123456AB" {
		t.Errorf("masked write = %s, want 123456AB", got)
	}
}

func TestExecute_RegisterErrors(t *testing.T) {
	in := newRig().start(t, node.BoardLVRM)
	tests := []struct {
		line string
		err  error
	}{
		{"AT$W=00,1", register.ErrReadOnlyViolation},
		{"AT$W=07,1", register.ErrReadOnlyViolation},
		{"AT$R=FF", register.ErrUnknownAddress},
		{"AT$W=FF,1", register.ErrUnknownAddress},
	}
	for _, tt := range tests {
		if reply := in.Execute(tt.line); !slices.Equal(reply, []string{errorReply(tt.err)}) {
			t.Errorf("%s = %q, want %s", tt.line, reply, errorReply(tt.err))
		}
	}
	// Protocol errors are only returned to the requester
	if in.Node().Errors().Len() != 0 {
		t.Errorf("error stack has %d codes", in.Node().Errors().Len())
	}
}

func TestExecute_Version(t *testing.T) {
	lines := run(t, newRig().start(t, node.BoardLVRM), "AT$V?")
	want := []string{"SW=1.2.3 ID=0ABCDEF dirty", "HW=1.0"}
	if !slices.Equal(lines, want) {
		t.Errorf("AT$V? = %q, want %q", lines, want)
	}
}

func TestExecute_ErrorStack(t *testing.T) {
	in := newRig().start(t, node.BoardLVRM)
	in.Node().Errors().Push(status.BaseGPS + 1)
	in.Node().Errors().Push(status.BaseAnalog + 2)
	in.Overflow(bus.ErrLineTruncated)

	lines := run(t, in, "AT$ERROR?")
	if want := []string{"0301", "0402", "0701"}; !slices.Equal(lines, want) {
		t.Errorf("AT$ERROR? = %q, want %q", lines, want)
	}
	if lines := run(t, in, "AT$ERROR?"); len(lines) != 0 {
		t.Errorf("stack not drained: %q", lines)
	}
}

func TestExecute_Reset(t *testing.T) {
	r := newRig()
	in := r.start(t, node.BoardLVRM)
	run(t, in, "AT$W=04,4,4") // clear boot flag

	run(t, in, "AT$RST")
	if !in.Node().ResetPending() {
		t.Fatal("reset not pending after AT$RST")
	}
	if r.system.Resets != 0 {
		t.Fatal("reset before the reply was sent")
	}

	in.Idle()
	if r.system.Resets != 1 || in.Node().ResetPending() {
		t.Errorf("resets=%d pending=%v", r.system.Resets, in.Node().ResetPending())
	}
	lines := run(t, in, "AT$R=03")
	if !slices.Contains(lines, "BF=1") || !slices.Contains(lines, fmt.Sprintf("RESET_FLAGS=0x%02X", driver.ResetSoftware)) {
		t.Errorf("STATUS_0 after reset = %q", lines)
	}
}

func TestExecute_ADC(t *testing.T) {
	lines := run(t, newRig().start(t, node.BoardLVRM), "AT$ADC?")
	for _, want := range []string{"VMCU=3300mV", "TMCU=25.0C", "VCOM=12500mV", "VOUT=12400mV", "IOUT=1500uA"} {
		if !slices.Contains(lines, want) {
			t.Errorf("AT$ADC? missing %q: %q", want, lines)
		}
	}
}

// ============================================================================
// Radio Command Tests
// ============================================================================

func TestRadio_Send(t *testing.T) {
	r := newRig()
	in := r.start(t, node.BoardUHFM)

	run(t, in, "AT$SF=0102AB")
	if len(r.sigfox.Sent) != 1 {
		t.Fatalf("sent %d frames", len(r.sigfox.Sent))
	}
	ul := r.sigfox.Sent[0]
	if !slices.Equal(ul.Payload, []byte{0x01, 0x02, 0xAB}) || ul.Bidirectional || ul.Control {
		t.Errorf("uplink = %+v", ul)
	}
}

func TestRadio_SendWithDownlink(t *testing.T) {
	r := newRig()
	r.sigfox.Downlink = []byte{0xDE, 0xAD, 0xBE, 0xEF}
	in := r.start(t, node.BoardUHFM)

	lines := run(t, in, "AT$SF=01,1")
	want := []string{"+RX=DEADBEEF00000000", "DL_RSSI=-110dBm"}
	if !slices.Equal(lines, want) {
		t.Errorf("AT$SF = %q, want %q", lines, want)
	}

	r.sigfox.Downlink = nil
	reply := in.Execute("AT$SF=01,1")
	if reply[len(reply)-1] != errorReply(driver.ErrRadioDownlink) {
		t.Errorf("missing downlink reply = %q", reply)
	}
	if in.Node().Errors().Len() != 1 {
		t.Errorf("driver error not on the stack")
	}
}

func TestRadio_ControlMessage(t *testing.T) {
	r := newRig()
	in := r.start(t, node.BoardUHFM)

	run(t, in, "AT$SO")
	if len(r.sigfox.Sent) != 1 || !r.sigfox.Sent[0].Control || len(r.sigfox.Sent[0].Payload) != 0 {
		t.Errorf("sent = %+v", r.sigfox.Sent)
	}
}

func TestRadio_ContinuousWaveBlocksSend(t *testing.T) {
	r := newRig()
	in := r.start(t, node.BoardUHFM)

	run(t, in, "AT$CW=868130000,1,14")
	if !r.sigfox.CW || r.sigfox.CWFreqHz != 868130000 {
		t.Fatalf("cw=%v freq=%d", r.sigfox.CW, r.sigfox.CWFreqHz)
	}

	reply := in.Execute("AT$SF=01")
	if reply[len(reply)-1] != errorReply(node.ErrRadioState) {
		t.Errorf("send during CW = %q", reply)
	}
	if len(r.sigfox.Sent) != 0 {
		t.Error("frame sent during continuous wave")
	}

	run(t, in, "AT$CW=868130000,0")
	if r.sigfox.CW {
		t.Error("continuous wave still running")
	}
	run(t, in, "AT$SF=01")
}

func TestRadio_TestMode(t *testing.T) {
	r := newRig()
	in := r.start(t, node.BoardUHFM)

	run(t, in, "AT$TM=3,2")
	if r.sigfox.TestModeRC != 3 {
		t.Errorf("test mode RC = %d", r.sigfox.TestModeRC)
	}
	reply := in.Execute("AT$TM=9,0")
	if !slices.Equal(reply, []string{errorReply(register.ErrRegisterFieldValue)}) {
		t.Errorf("invalid RC = %q", reply)
	}
}

func TestRadio_RSSI(t *testing.T) {
	in := newRig().start(t, node.BoardUHFM)

	lines := run(t, in, "AT$RSSI=868130000,3")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	for _, l := range lines {
		if l != "RSSI=-110dBm" {
			t.Errorf("line = %q", l)
		}
	}
	if reply := in.Execute("AT$RSSI=868130000,11"); !slices.Equal(reply, []string{"ERROR_0205"}) {
		t.Errorf("count overflow = %q", reply)
	}
}

// ============================================================================
// GPS Command Tests
// ============================================================================

func TestGPS_Time(t *testing.T) {
	in := newRig().start(t, node.BoardGPSM)
	lines := run(t, in, "AT$TIME=60")
	want := []string{"2025-06-21 12:30:15", "FIX=20s"}
	if !slices.Equal(lines, want) {
		t.Errorf("AT$TIME = %q, want %q", lines, want)
	}
}

func TestGPS_Position(t *testing.T) {
	in := newRig().start(t, node.BoardGPSM)
	lines := run(t, in, "AT$GPS=60")
	want := []string{"LAT=43d36m12.345sN", "LONG=1d26m54.321sE", "ALT=146m", "FIX=20s"}
	if !slices.Equal(lines, want) {
		t.Errorf("AT$GPS = %q, want %q", lines, want)
	}
}

func TestGPS_Timeout(t *testing.T) {
	in := newRig().start(t, node.BoardGPSM)
	reply := in.Execute("AT$TIME=5")
	if !slices.Equal(reply, []string{errorReply(driver.ErrGPSTimeout)}) {
		t.Errorf("timeout reply = %q", reply)
	}
	if lines := run(t, in, "AT$ERROR?"); !slices.Equal(lines, []string{"0701"}) {
		t.Errorf("error stack = %q", lines)
	}
	if reply := in.Execute("AT$TIME=0"); !slices.Equal(reply, []string{"ERROR_0205"}) {
		t.Errorf("zero timeout = %q", reply)
	}
}

func TestGPS_Timepulse(t *testing.T) {
	r := newRig()
	in := r.start(t, node.BoardGPSM)

	run(t, in, "AT$PULSE=1,1000,25")
	tp := r.gps.Timepulse
	if !tp.Enabled || tp.FrequencyHz != 1000 || tp.DutyPercent != 25 {
		t.Errorf("timepulse = %+v", tp)
	}
	run(t, in, "AT$PULSE=0,1000,25")
	if r.gps.Timepulse.Enabled {
		t.Error("timepulse still enabled")
	}
}

// ============================================================================
// Bus Integration Tests
// ============================================================================

func TestInterpreter_OverBus(t *testing.T) {
	in := newRig().start(t, node.BoardLVRM)
	masterConn, nodeConn := net.Pipe()
	ep := bus.NewEndpoint(nodeConn, bus.ModeAddressed, in, nil)
	done := make(chan error, 1)
	go func() { done <- ep.Serve(t.Context()) }()
	defer func() {
		masterConn.Close()
		nodeConn.Close()
		<-done
	}()

	m := bus.NewMaster(masterConn, bus.ModeAddressed)
	ctx := t.Context()

	v, err := m.ReadRegister(ctx, 0x10, node.AddrNodeID)
	if err != nil {
		t.Fatalf("ReadRegister: %v", err)
	}
	if v != 0x00000010 {
		t.Errorf("NODE_ID = 0x%08X", v)
	}

	err = m.WriteRegister(ctx, 0x10, node.AddrSWVersion0, 1)
	if !strings.Contains(fmt.Sprint(err), "ERROR_0102") {
		t.Errorf("read-only write error = %v", err)
	}
	if status.CodeOf(err, 0) != register.ErrReadOnlyViolation.Code {
		t.Errorf("code = %s", status.CodeOf(err, 0))
	}
}
