// Package blemidi implements the packet framing of MIDI over Bluetooth LE.
//
// Every packet starts with a header byte carrying the high 6 bits of a 13-bit
// millisecond timestamp. Each status byte is preceded by a timestamp byte
// carrying the low 7 bits. Packets continuing a SysEx carry bare data bytes.
package blemidi

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jwoglom/midistream/pkg/midi"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultMTU is the ATT MTU before any negotiation
	DefaultMTU = 23

	// MaxPacketSize is the largest packet that fits the default MTU
	MaxPacketSize = DefaultMTU - 3

	// TimestampMask keeps the 13 bits a BLE-MIDI timestamp can hold
	TimestampMask = 0x1FFF

	headerFlag    = 0x80
	headerMask    = 0xC0
	timestampFlag = 0x80
	minPacketSize = 5
)

var (
	// ErrInvalidHeader is returned for packets not starting with a header byte
	ErrInvalidHeader = errors.New("invalid BLE-MIDI header")

	// ErrDanglingTimestamp is returned when a packet ends with a timestamp byte
	ErrDanglingTimestamp = errors.New("timestamp byte without MIDI data")

	// ErrPacketTooLarge is returned by Frame when messages do not fit one packet
	ErrPacketTooLarge = errors.New("messages do not fit in one packet")
)

// PacketHeader represents the header of a packet
type PacketHeader struct {
	TimestampHigh uint8
}

// ParsePacketHeader parses the packet header from data
func ParsePacketHeader(data []byte) (*PacketHeader, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("packet too short for header: %w", ErrInvalidHeader)
	}
	if data[0]&headerMask != headerFlag {
		return nil, fmt.Errorf("header byte 0x%02X: %w", data[0], ErrInvalidHeader)
	}

	return &PacketHeader{
		TimestampHigh: data[0] & 0x3F,
	}, nil
}

// Unframe strips the header and timestamp bytes from a packet and calls fn
// with every MIDI byte and the timestamp it was sent with.
//
// A byte with the high bit set that does not follow a timestamp byte is a
// timestamp. The low 7 bits wrapping within a packet carry into the high bits.
func Unframe(packet []byte, fn func(ts uint16, b byte)) error {
	header, err := ParsePacketHeader(packet)
	if err != nil {
		return err
	}

	high := uint16(header.TimestampHigh)
	var low uint16
	seenLow := false
	afterTimestamp := false

	for _, b := range packet[1:] {
		if b&timestampFlag != 0 && !afterTimestamp {
			l := uint16(b & 0x7F)
			if seenLow && l < low {
				high = (high + 1) & 0x3F
			}
			low = l
			seenLow = true
			afterTimestamp = true
			continue
		}
		afterTimestamp = false
		fn(high<<7|low, b)
	}

	if afterTimestamp {
		return ErrDanglingTimestamp
	}
	return nil
}

// Frame encodes msgs into a single packet stamped with ts
func Frame(ts uint16, msgs ...midi.Message) ([]byte, error) {
	packets, err := Packetize(ts, MaxPacketSize, msgs...)
	if err != nil {
		return nil, err
	}
	switch len(packets) {
	case 0:
		return []byte{header(ts)}, nil
	case 1:
		return packets[0], nil
	default:
		return nil, fmt.Errorf("%d packets needed: %w", len(packets), ErrPacketTooLarge)
	}
}

// Packetize takes messages and breaks them into packets of at most size bytes.
// A SysEx longer than one packet continues in packets carrying only data.
func Packetize(ts uint16, size int, msgs ...midi.Message) ([][]byte, error) {
	if size < minPacketSize {
		return nil, fmt.Errorf("packet size %d below minimum %d", size, minPacketSize)
	}

	ts &= TimestampMask
	var packets [][]byte
	cur := make([]byte, 1, size)
	cur[0] = header(ts)

	flush := func() {
		if len(cur) > 1 {
			packets = append(packets, cur)
		}
		cur = make([]byte, 1, size)
		cur[0] = header(ts)
	}
	ensure := func(n int) {
		if len(cur)+n > size {
			flush()
		}
	}

	for _, msg := range msgs {
		if msg.Kind == midi.KindNone {
			continue
		}
		if msg.Family() != midi.FamilySysEx {
			ensure(1 + msg.Len())
			cur = append(cur, timestamp(ts))
			cur = msg.AppendBytes(cur)
			continue
		}

		ensure(2)
		cur = append(cur, timestamp(ts), midi.SysExStart)
		for _, b := range msg.Payload {
			if len(cur) == size {
				flush()
			}
			cur = append(cur, b&midi.DataMask)
		}
		ensure(2)
		cur = append(cur, timestamp(ts), midi.SysExEnd)
	}
	flush()

	for i, p := range packets {
		log.Tracef("Created packet %d/%d: ts=%d, size=%d", i+1, len(packets), ts, len(p))
	}
	return packets, nil
}

// LogPacket logs a packet in a readable format
func LogPacket(direction string, data []byte) {
	header, err := ParsePacketHeader(data)
	if err != nil {
		log.Warnf("%s packet invalid: %s", direction, hex.EncodeToString(data))
		return
	}

	log.Debugf("%s packet: tsHigh=%d, payload=%s",
		direction, header.TimestampHigh, hex.EncodeToString(data[1:]))
}

func header(ts uint16) byte {
	return headerFlag | byte(ts>>7)&0x3F
}

func timestamp(ts uint16) byte {
	return timestampFlag | byte(ts)&0x7F
}
