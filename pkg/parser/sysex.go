package parser

import (
	"errors"

	"github.com/jwoglom/midistream/pkg/midi"
)

// errUnterminatedByInvalid is returned when a reserved status byte interrupts
// a capture. It matches both ErrUnterminatedSysEx and ErrInvalidStatusByte.
var errUnterminatedByInvalid = errors.Join(ErrUnterminatedSysEx, ErrInvalidStatusByte)

// sysexBuffer is a fixed capacity byte buffer. Its backing array is allocated
// once and never grows.
type sysexBuffer struct {
	buf []byte
	n   int
}

func newSysExBuffer(capacity int) sysexBuffer {
	if capacity < 0 {
		capacity = 0
	}
	return sysexBuffer{buf: make([]byte, capacity)}
}

// append adds b and returns false if the buffer is full
func (s *sysexBuffer) append(b byte) bool {
	if s.n >= len(s.buf) {
		return false
	}
	s.buf[s.n] = b
	s.n++
	return true
}

func (s *sysexBuffer) reset() {
	s.n = 0
}

func (s *sysexBuffer) len() int {
	return s.n
}

func (s *sysexBuffer) capacity() int {
	return len(s.buf)
}

// bytes returns the captured bytes; the slice is capped so appends by the
// caller cannot write into the buffer.
func (s *sysexBuffer) bytes() []byte {
	return s.buf[:s.n:s.n]
}

func (p *Parser) startSysEx() {
	p.abandon()
	p.running = 0
	p.sysex.reset()
	p.state = StateCapturingSysEx
}

func (p *Parser) captureData(b byte) (midi.Message, bool, error) {
	if !p.sysex.append(b) {
		p.sysex.reset()
		p.state = StateIdle
		return midi.Message{}, false, ErrSysExBufferOverflow
	}
	return midi.Message{}, false, nil
}

func (p *Parser) endSysEx() (midi.Message, bool, error) {
	msg := midi.NewSysEx(p.sysex.bytes())
	p.sysex.reset()
	p.state = StateIdle
	return msg, true, nil
}

// interruptSysEx drops an unterminated capture and handles b as a fresh
// status byte in the same call. A message completed by b (0xF6) is returned
// together with ErrUnterminatedSysEx. A reserved b reports both errors.
func (p *Parser) interruptSysEx(b byte) (midi.Message, bool, error) {
	p.sysex.reset()
	p.state = StateIdle
	msg, ok, err := p.parseStatus(b)
	if errors.Is(err, ErrInvalidStatusByte) {
		return msg, ok, errUnterminatedByInvalid
	}
	return msg, ok, ErrUnterminatedSysEx
}
