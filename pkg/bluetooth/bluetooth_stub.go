//go:build !linux

package bluetooth

import (
	"errors"

	log "github.com/sirupsen/logrus"
)

// ErrUnsupported is returned by every operation on non-Linux platforms
var ErrUnsupported = errors.New("bluetooth not supported on this platform")

// Ble represents the Bluetooth Low Energy device (stub for non-Linux platforms)
type Ble struct {
	packetHandler     PacketHandler
	connectionHandler ConnectionHandler
}

// New returns ErrUnsupported on non-Linux platforms
func New(name string) (*Ble, error) {
	log.Warn("Bluetooth is only supported on Linux")
	return nil, ErrUnsupported
}

// SetPacketHandler sets the callback for packets written by a central
func (b *Ble) SetPacketHandler(handler PacketHandler) {
	b.packetHandler = handler
}

// SetConnectionHandler sets the callback for when a central connects or disconnects (no-op on non-Linux)
func (b *Ble) SetConnectionHandler(handler ConnectionHandler) {
	b.connectionHandler = handler
}

// Notify sends a packet to the subscribed central (stub)
func (b *Ble) Notify(packet []byte) error {
	return ErrUnsupported
}

// IsConnected returns true if a central device is connected (always false on non-Linux)
func (b *Ble) IsConnected() bool {
	return false
}

// ShutdownConnection closes the connection with the central device (no-op)
func (b *Ble) ShutdownConnection() {
	log.Debug("ShutdownConnection called on non-Linux platform (no-op)")
}
