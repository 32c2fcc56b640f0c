// Package parser decodes a MIDI 1.0 byte stream one byte at a time.
//
// A Parser never allocates after construction. System realtime bytes are
// returned as soon as they arrive, even in the middle of another message,
// and do not disturb the message being assembled. Running status is tracked
// for channel voice messages. SysEx messages are captured into a buffer whose
// capacity is fixed by New.
//
// A Parser is not safe for concurrent use.
package parser

import "github.com/jwoglom/midistream/pkg/midi"

// DefaultSysExCapacity is the SysEx buffer size used by the CLI when none is configured
const DefaultSysExCapacity = 256

// State is the assembly state of a Parser
type State uint8

const (
	// StateIdle has no message in progress
	StateIdle State = iota
	// StateAwaitingData has a status byte and is collecting its data bytes
	StateAwaitingData
	// StateCapturingSysEx is between 0xF0 and the terminating 0xF7
	StateCapturingSysEx
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingData:
		return "AwaitingData"
	case StateCapturingSysEx:
		return "CapturingSysEx"
	default:
		return "Unknown"
	}
}

// Parser holds the decoding state for one MIDI stream
type Parser struct {
	state State

	// AwaitingData
	status   byte
	expected int
	data     [2]byte
	count    int

	// last channel voice status, 0 if none
	running byte

	sysex sysexBuffer
}

// New returns a parser whose SysEx buffer holds at most sysexCapacity bytes.
// A negative capacity is treated as 0, which still allows empty SysEx messages.
func New(sysexCapacity int) *Parser {
	return &Parser{
		sysex: newSysExBuffer(sysexCapacity),
	}
}

// Parse feeds one byte into the parser.
//
// It returns ok=true with the completed message when b finishes one, ok=false
// with a nil error when more bytes are needed, and a non-nil error when b is
// invalid in context. After an error the parser has already recovered.
//
// An unterminated SysEx is reported with ErrUnterminatedSysEx and the
// interrupting byte is then handled as a new status byte; if that byte is a
// Tune Request the resulting message is returned along with the error.
// If it is a reserved status byte the error also matches ErrInvalidStatusByte.
//
// The payload of a returned SysEx message is only valid until the next call.
func (p *Parser) Parse(b byte) (midi.Message, bool, error) {
	switch midi.Classify(b) {
	case midi.ClassRealtime:
		if kind := midi.KindOf(b); kind != midi.KindNone {
			return midi.NewRealtime(kind), true, nil
		}
		if b == 0xFD {
			return midi.Message{}, false, ErrInvalidStatusByte
		}
		// 0xF9 is handled like the undefined system common values
	case midi.ClassData:
		if p.state == StateCapturingSysEx {
			return p.captureData(b)
		}
		return p.assembleData(b)
	}

	if p.state == StateCapturingSysEx {
		if b == midi.SysExEnd {
			return p.endSysEx()
		}
		return p.interruptSysEx(b)
	}
	return p.parseStatus(b)
}

// Reset returns the parser to Idle, clearing running status and any partial
// message or SysEx capture.
func (p *Parser) Reset() {
	p.abandon()
	p.running = 0
	p.sysex.reset()
	p.state = StateIdle
}

// State returns the current assembly state
func (p *Parser) State() State {
	return p.state
}

// RunningStatus returns the remembered channel voice status, if any
func (p *Parser) RunningStatus() (byte, bool) {
	return p.running, p.running != 0
}

// Buffered returns the number of bytes held in the SysEx buffer
func (p *Parser) Buffered() int {
	return p.sysex.len()
}

// Capacity returns the fixed SysEx buffer capacity
func (p *Parser) Capacity() int {
	return p.sysex.capacity()
}

// parseStatus handles a non-realtime status byte outside of SysEx capture
func (p *Parser) parseStatus(b byte) (midi.Message, bool, error) {
	switch {
	case b == midi.SysExStart:
		p.startSysEx()
		return midi.Message{}, false, nil
	case b == midi.SysExEnd:
		// terminator without a capture in progress
		p.abandon()
		p.running = 0
		return midi.Message{}, false, nil
	case midi.IsReserved(b):
		p.Reset()
		return midi.Message{}, false, ErrInvalidStatusByte
	}

	if midi.Classify(b) == midi.ClassChannelVoice {
		p.running = b
	} else {
		p.running = 0
	}
	return p.begin(b)
}

// assembleData handles a data byte outside of SysEx capture
func (p *Parser) assembleData(b byte) (midi.Message, bool, error) {
	if p.state == StateIdle {
		if p.running == 0 {
			return midi.Message{}, false, ErrUnexpectedDataByte
		}
		p.begin(p.running)
	}

	p.data[p.count] = b
	p.count++
	if p.count < p.expected {
		return midi.Message{}, false, nil
	}
	return p.complete(), true, nil
}

// begin starts assembling a message for status, completing it at once if it
// carries no data.
func (p *Parser) begin(status byte) (midi.Message, bool, error) {
	p.status = status
	p.expected = midi.DataLength(status)
	p.data = [2]byte{}
	p.count = 0
	if p.expected == 0 {
		return p.complete(), true, nil
	}
	p.state = StateAwaitingData
	return midi.Message{}, false, nil
}

func (p *Parser) complete() midi.Message {
	kind := midi.KindOf(p.status)
	msg := midi.Message{Kind: kind, Data: p.data}
	if kind.Family() == midi.FamilyChannelVoice {
		msg.Channel = p.status & midi.ChannelMask
	}
	p.abandon()
	return msg
}

// abandon drops any partial channel or common message
func (p *Parser) abandon() {
	p.status = 0
	p.expected = 0
	p.count = 0
	if p.state == StateAwaitingData {
		p.state = StateIdle
	}
}
