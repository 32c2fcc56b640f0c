package midi

import (
	"encoding/hex"
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// Message is a single decoded MIDI 1.0 message.
//
// Kind selects which of the other fields are meaningful:
//   - channel voice kinds use Channel and the first DataLength() bytes of Data
//   - system common kinds use the first DataLength() bytes of Data
//   - realtime kinds carry nothing
//   - KindSystemExclusive uses Payload (without the F0/F7 framing)
//
// A Message produced by the parser may have a Payload that aliases the
// parser's SysEx buffer; use Clone to keep it past the next Parse call.
type Message struct {
	Kind    Kind
	Channel uint8
	Data    [2]byte
	Payload []byte
}

// NewChannelVoice builds a channel voice message. Channel and data are masked
// to their valid ranges.
func NewChannelVoice(kind Kind, channel, data1, data2 uint8) Message {
	m := Message{Kind: kind, Channel: channel & ChannelMask}
	m.Data[0] = data1 & DataMask
	if kind.DataLength() == 2 {
		m.Data[1] = data2 & DataMask
	}
	return m
}

// NewNoteOn builds a Note On message
func NewNoteOn(channel, key, velocity uint8) Message {
	return NewChannelVoice(KindNoteOn, channel, key, velocity)
}

// NewNoteOff builds a Note Off message
func NewNoteOff(channel, key, velocity uint8) Message {
	return NewChannelVoice(KindNoteOff, channel, key, velocity)
}

// NewControlChange builds a Control Change message
func NewControlChange(channel, controller, value uint8) Message {
	return NewChannelVoice(KindControlChange, channel, controller, value)
}

// NewProgramChange builds a Program Change message
func NewProgramChange(channel, program uint8) Message {
	return NewChannelVoice(KindProgramChange, channel, program, 0)
}

// NewPitchBend builds a Pitch Bend message from a signed value in -8192..8191
func NewPitchBend(channel uint8, value int16) Message {
	if value < -8192 {
		value = -8192
	} else if value > 8191 {
		value = 8191
	}
	v := uint16(int32(value) + 8192)
	return NewChannelVoice(KindPitchBend, channel, uint8(v&DataMask), uint8(v>>7))
}

// NewSystemCommon builds a system common message
func NewSystemCommon(kind Kind, data1, data2 uint8) Message {
	m := Message{Kind: kind}
	switch kind.DataLength() {
	case 2:
		m.Data[1] = data2 & DataMask
		fallthrough
	case 1:
		m.Data[0] = data1 & DataMask
	}
	return m
}

// NewRealtime builds a system realtime message
func NewRealtime(kind Kind) Message {
	return Message{Kind: kind}
}

// NewSysEx builds a system exclusive message around payload (without F0/F7)
func NewSysEx(payload []byte) Message {
	return Message{Kind: KindSystemExclusive, Payload: payload}
}

// Family returns the family of the message kind
func (m Message) Family() Family {
	return m.Kind.Family()
}

// Status returns the status byte of the message
func (m Message) Status() byte {
	return m.Kind.Status(m.Channel)
}

// Len returns the length of the message on the wire
func (m Message) Len() int {
	if m.Kind == KindSystemExclusive {
		return len(m.Payload) + 2
	}
	if m.Kind == KindNone {
		return 0
	}
	return 1 + m.Kind.DataLength()
}

// AppendBytes appends the wire form of the message to dst
func (m Message) AppendBytes(dst []byte) []byte {
	switch m.Kind {
	case KindNone:
		return dst
	case KindSystemExclusive:
		dst = append(dst, SysExStart)
		dst = append(dst, m.Payload...)
		return append(dst, SysExEnd)
	}
	dst = append(dst, m.Status())
	return append(dst, m.Data[:m.Kind.DataLength()]...)
}

// Bytes returns the wire form of the message
func (m Message) Bytes() []byte {
	return m.AppendBytes(make([]byte, 0, m.Len()))
}

// Clone returns a copy of m that does not share its payload
func (m Message) Clone() Message {
	if m.Payload != nil {
		payload := make([]byte, len(m.Payload))
		copy(payload, m.Payload)
		m.Payload = payload
	}
	return m
}

// Equal reports whether two messages carry the same content
func (m Message) Equal(o Message) bool {
	if m.Kind != o.Kind {
		return false
	}
	switch m.Family() {
	case FamilyChannelVoice:
		return m.Channel == o.Channel && m.Data == o.Data
	case FamilySystemCommon:
		return m.Data == o.Data
	case FamilySysEx:
		if len(m.Payload) != len(o.Payload) {
			return false
		}
		for i := range m.Payload {
			if m.Payload[i] != o.Payload[i] {
				return false
			}
		}
	}
	return true
}

// Note returns the key of a note or poly pressure message
func (m Message) Note() uint8 {
	return m.Data[0]
}

// Velocity returns the velocity of a note message
func (m Message) Velocity() uint8 {
	return m.Data[1]
}

// Controller returns the controller number of a control change message
func (m Message) Controller() uint8 {
	return m.Data[0]
}

// Value returns the second data byte (controller value, pressure)
func (m Message) Value() uint8 {
	return m.Data[1]
}

// PitchBend returns the signed pitch bend value in -8192..8191
func (m Message) PitchBend() int16 {
	return int16(m.value14()) - 8192
}

// SongPosition returns the 14-bit song position in MIDI beats
func (m Message) SongPosition() uint16 {
	return m.value14()
}

func (m Message) value14() uint16 {
	return uint16(m.Data[0]) | uint16(m.Data[1])<<7
}

// Gomidi converts the message for use with gitlab.com/gomidi/midi/v2
func (m Message) Gomidi() gomidi.Message {
	return gomidi.Message(m.Bytes())
}

func (m Message) String() string {
	switch m.Kind {
	case KindNoteOff, KindNoteOn:
		return fmt.Sprintf("%s channel=%d key=%d velocity=%d", m.Kind, m.Channel, m.Note(), m.Velocity())
	case KindPolyPressure:
		return fmt.Sprintf("%s channel=%d key=%d pressure=%d", m.Kind, m.Channel, m.Note(), m.Value())
	case KindControlChange:
		return fmt.Sprintf("%s channel=%d controller=%d value=%d", m.Kind, m.Channel, m.Controller(), m.Value())
	case KindProgramChange:
		return fmt.Sprintf("%s channel=%d program=%d", m.Kind, m.Channel, m.Data[0])
	case KindChannelPressure:
		return fmt.Sprintf("%s channel=%d pressure=%d", m.Kind, m.Channel, m.Data[0])
	case KindPitchBend:
		return fmt.Sprintf("%s channel=%d value=%d", m.Kind, m.Channel, m.PitchBend())
	case KindTimeCodeQuarterFrame:
		return fmt.Sprintf("%s type=%d value=%d", m.Kind, m.Data[0]>>4, m.Data[0]&0x0F)
	case KindSongPositionPointer:
		return fmt.Sprintf("%s position=%d", m.Kind, m.SongPosition())
	case KindSongSelect:
		return fmt.Sprintf("%s song=%d", m.Kind, m.Data[0])
	case KindSystemExclusive:
		return fmt.Sprintf("%s len=%d data=%s", m.Kind, len(m.Payload), hex.EncodeToString(m.Payload))
	default:
		return m.Kind.String()
	}
}
