package blemidi

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jwoglom/midistream/pkg/midi"
)

func TestParsePacketHeader(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    uint8
		wantErr bool
	}{
		{"zero timestamp", []byte{0x80}, 0, false},
		{"max timestamp", []byte{0xBF, 0x80, 0xF8}, 0x3F, false},
		{"empty", []byte{}, 0, true},
		{"bit 6 set", []byte{0xC0}, 0, true},
		{"data byte", []byte{0x12}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, err := ParsePacketHeader(tt.data)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidHeader) {
					t.Errorf("Expected ErrInvalidHeader, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if header.TimestampHigh != tt.want {
				t.Errorf("Expected timestamp high %d, got %d", tt.want, header.TimestampHigh)
			}
		})
	}
}

type timedByte struct {
	ts uint16
	b  byte
}

func unframeAll(t *testing.T, packet []byte) ([]timedByte, error) {
	t.Helper()
	var out []timedByte
	err := Unframe(packet, func(ts uint16, b byte) {
		out = append(out, timedByte{ts, b})
	})
	return out, err
}

func TestUnframe(t *testing.T) {
	tests := []struct {
		name   string
		packet []byte
		want   []timedByte
	}{
		{
			name:   "two messages",
			packet: []byte{0x80, 0x81, 0x90, 60, 100, 0x82, 0x80, 60, 0},
			want:   []timedByte{{1, 0x90}, {1, 60}, {1, 100}, {2, 0x80}, {2, 60}, {2, 0}},
		},
		{
			name:   "running status after timestamp",
			packet: []byte{0x81, 0x81, 0x90, 60, 100, 0x85, 61, 90},
			want:   []timedByte{{129, 0x90}, {129, 60}, {129, 100}, {133, 61}, {133, 90}},
		},
		{
			name:   "sysex continuation",
			packet: []byte{0x80, 1, 2, 3, 0x84, 0xF7},
			want:   []timedByte{{0, 1}, {0, 2}, {0, 3}, {4, 0xF7}},
		},
		{
			name:   "low timestamp wraps",
			packet: []byte{0x80, 0xFF, 0xF8, 0x81, 0xF8},
			want:   []timedByte{{127, 0xF8}, {129, 0xF8}},
		},
		{
			name:   "header only",
			packet: []byte{0x80},
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := unframeAll(t, tt.packet)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("Byte %d: expected %v, got %v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestUnframeErrors(t *testing.T) {
	if _, err := unframeAll(t, []byte{0x80, 0x90, 0xF8, 0x81}); !errors.Is(err, ErrDanglingTimestamp) {
		t.Errorf("Expected ErrDanglingTimestamp, got %v", err)
	}
	if _, err := unframeAll(t, []byte{0x40, 0x80, 0xF8}); !errors.Is(err, ErrInvalidHeader) {
		t.Errorf("Expected ErrInvalidHeader, got %v", err)
	}
}

func TestFrame(t *testing.T) {
	tests := []struct {
		name string
		ts   uint16
		msgs []midi.Message
		want []byte
	}{
		{
			name: "note on",
			ts:   1000,
			msgs: []midi.Message{midi.NewNoteOn(0, 60, 127)},
			want: []byte{0x87, 0xE8, 0x90, 0x3C, 0x7F},
		},
		{
			name: "two messages",
			ts:   1,
			msgs: []midi.Message{midi.NewRealtime(midi.KindStart), midi.NewProgramChange(2, 5)},
			want: []byte{0x80, 0x81, 0xFA, 0x81, 0xC2, 0x05},
		},
		{
			name: "sysex",
			ts:   0,
			msgs: []midi.Message{midi.NewSysEx([]byte{0x7E, 0x01})},
			want: []byte{0x80, 0x80, 0xF0, 0x7E, 0x01, 0x80, 0xF7},
		},
		{
			name: "timestamp masked to 13 bits",
			ts:   0x2000 | 5,
			msgs: []midi.Message{midi.NewRealtime(midi.KindTimingClock)},
			want: []byte{0x80, 0x85, 0xF8},
		},
		{
			name: "no messages",
			ts:   0,
			want: []byte{0x80},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Frame(tt.ts, tt.msgs...)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Expected % X, got % X", tt.want, got)
			}
		})
	}
}

func TestFrameTooLarge(t *testing.T) {
	_, err := Frame(0, midi.NewSysEx(make([]byte, 30)))
	if !errors.Is(err, ErrPacketTooLarge) {
		t.Errorf("Expected ErrPacketTooLarge, got %v", err)
	}
}

func TestPacketizeSplitsSysEx(t *testing.T) {
	payload := make([]byte, 40)
	for i := range payload {
		payload[i] = byte(i)
	}

	packets, err := Packetize(7, MaxPacketSize, midi.NewSysEx(payload))
	if err != nil {
		t.Fatalf("Packetize failed: %v", err)
	}
	if len(packets) != 3 {
		t.Fatalf("Expected 3 packets, got %d", len(packets))
	}

	var got []byte
	for i, p := range packets {
		if len(p) > MaxPacketSize {
			t.Errorf("Packet %d is %d bytes", i, len(p))
		}
		if err := Unframe(p, func(ts uint16, b byte) { got = append(got, b) }); err != nil {
			t.Fatalf("Packet %d: %v", i, err)
		}
	}

	want := append(append([]byte{0xF0}, payload...), 0xF7)
	if !bytes.Equal(got, want) {
		t.Errorf("Expected % X, got % X", want, got)
	}
}

func TestPacketizeMinimumSize(t *testing.T) {
	if _, err := Packetize(0, 4, midi.NewNoteOn(0, 1, 1)); err == nil {
		t.Error("Expected error for packet size 4")
	}
}
