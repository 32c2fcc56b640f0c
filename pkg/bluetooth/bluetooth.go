// Package bluetooth exposes a BLE-MIDI peripheral. Centrals write BLE-MIDI
// packets to the I/O characteristic and subscribe to it for notifications.
package bluetooth

// Service UUID for BLE-MIDI
const (
	MIDIServiceUUID = "03B80E5A-EDE8-4B33-A751-6CE34EC4C700"
)

// Characteristic UUIDs
const (
	MIDIIOCharUUID = "7772E5DB-3868-4112-A1A9-F2669D106BF3"
)

// DefaultName is the advertised name when none is configured
const DefaultName = "midistream"

// PacketHandler is called with every packet a central writes
type PacketHandler func(packet []byte)

// ConnectionHandler is called when a central connects or disconnects
type ConnectionHandler func(connected bool)
