// Package midi wraps gomidi/midi's v2 driver API into the two narrow
// collaborators the scheduler needs: a byte sink (Output) accepting 2-3-byte
// MIDI messages, and a byte source (Input) yielding them for the
// accompaniment matcher, per spec.md §1's out-of-scope "low-level MIDI
// transport" boundary.
package midi

import (
	"fmt"
	"io"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // auto-register RtMIDI driver
)

// Status bytes the original implementation's raw dump mode filters out,
// since a clock-synced controller floods them continuously and they drown
// out the note data a player actually wants to see.
const (
	statusRealTimeClock = 0xf8
	statusActiveSensing = 0xfe
)

// Output represents a MIDI output connection.
type Output struct {
	port drivers.Out
	send func(msg midi.Message) error
}

// ListPorts returns a list of available MIDI output port names.
func ListPorts() ([]string, error) {
	ports := midi.GetOutPorts()
	names := make([]string, len(ports))
	for i, port := range ports {
		names[i] = port.String()
	}
	return names, nil
}

// Open opens a MIDI output port by index.
func Open(portIndex int) (*Output, error) {
	port, err := midi.OutPort(portIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to get MIDI port %d: %w", portIndex, err)
	}

	send, err := midi.SendTo(port)
	if err != nil {
		return nil, fmt.Errorf("failed to create sender: %w", err)
	}

	return &Output{port: port, send: send}, nil
}

// OpenByName opens the output port whose name contains the given substring
// (case-insensitive), for the "hw:X..." and "virtual" port-name argument
// shapes of spec.md §6.
func OpenByName(name string) (*Output, error) {
	ports := midi.GetOutPorts()
	lower := strings.ToLower(name)
	for i, port := range ports {
		if strings.Contains(strings.ToLower(port.String()), lower) {
			return Open(i)
		}
	}
	return nil, fmt.Errorf("no MIDI output port matching %q", name)
}

// Close closes the MIDI output port.
func (o *Output) Close() error {
	return o.port.Close()
}

// NoteOn sends a MIDI Note On message. note, velocity: 0-127. channel: 0-15.
func (o *Output) NoteOn(channel, note, velocity uint8) error {
	return o.send(midi.NoteOn(channel, note, velocity))
}

// NoteOff sends a MIDI Note Off message.
func (o *Output) NoteOff(channel, note uint8) error {
	return o.send(midi.NoteOff(channel, note))
}

// ControlChange sends a MIDI controller message (volume, bank select, RPN
// registers, all-notes-off 0x7B, etc., per spec.md §6's wire catalog).
func (o *Output) ControlChange(channel, controller, value uint8) error {
	return o.send(midi.ControlChange(channel, controller, value))
}

// ProgramChange sends a MIDI program-change message.
func (o *Output) ProgramChange(channel, program uint8) error {
	return o.send(midi.ProgramChange(channel, program))
}

// PitchBend sends a 14-bit pitch-wheel message (0..16383, 0x2000 centered).
func (o *Output) PitchBend(channel uint8, value int16) error {
	return o.send(midi.Pitchbend(channel, value-0x2000))
}

// AllNotesOff sends the all-notes-off controller (0x7B) on one channel.
func (o *Output) AllNotesOff(channel uint8) error {
	return o.ControlChange(channel, 0x7B, 0)
}

// InEvent is one note-on/off received from a MIDI input port.
type InEvent struct {
	Channel  uint8
	Note     uint8
	Velocity uint8
	IsNoteOn bool
}

// Input represents a MIDI input connection, read as a blocking channel of
// note events (spec.md §5's single blocking-read suspension point).
type Input struct {
	port   drivers.In
	stopFn func()
	events chan InEvent
}

// ListInPorts returns a list of available MIDI input port names.
func ListInPorts() ([]string, error) {
	ports := midi.GetInPorts()
	names := make([]string, len(ports))
	for i, port := range ports {
		names[i] = port.String()
	}
	return names, nil
}

// OpenIn opens a MIDI input port by index and starts listening in the
// background, buffering note events for blocking Read calls.
func OpenIn(portIndex int) (*Input, error) {
	port, err := midi.InPort(portIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to get MIDI input port %d: %w", portIndex, err)
	}

	events := make(chan InEvent, 256)
	stopFn, err := midi.ListenTo(port, func(msg midi.Message, _ int32) {
		var ch, note, vel uint8
		switch {
		case msg.GetNoteOn(&ch, &note, &vel):
			events <- InEvent{Channel: ch, Note: note, Velocity: vel, IsNoteOn: true}
		case msg.GetNoteOff(&ch, &note, &vel):
			events <- InEvent{Channel: ch, Note: note, Velocity: 0, IsNoteOn: false}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to listen on MIDI input port %d: %w", portIndex, err)
	}

	return &Input{port: port, stopFn: stopFn, events: events}, nil
}

// DumpIncoming opens the input port by index and writes every incoming MIDI
// byte to w in hex, space-separated, skipping real-time clock and active
// sensing bytes (spec.md §6's "-d"/"-dump" diagnostic mode). It runs until
// the returned stop function is called.
func DumpIncoming(portIndex int, w io.Writer) (stop func() error, err error) {
	port, err := midi.InPort(portIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to get MIDI input port %d: %w", portIndex, err)
	}

	stopFn, err := midi.ListenTo(port, func(msg midi.Message, _ int32) {
		for _, b := range msg.Bytes() {
			if b == statusRealTimeClock || b == statusActiveSensing {
				continue
			}
			fmt.Fprintf(w, "%02x ", b)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to listen on MIDI input port %d: %w", portIndex, err)
	}

	return func() error {
		stopFn()
		return port.Close()
	}, nil
}

// Read blocks until the next note event arrives.
func (in *Input) Read() InEvent {
	return <-in.events
}

// Close stops listening and closes the input port.
func (in *Input) Close() error {
	if in.stopFn != nil {
		in.stopFn()
	}
	return in.port.Close()
}

// LooksLikeKeyboard is a heuristic device-name match used to preselect the
// input port in batch (non-interactive) mode: most USB MIDI keyboards advertise
// "keyboard" or "keys" somewhere in their port name.
func LooksLikeKeyboard(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "keyboard") || strings.Contains(lower, "keys")
}
