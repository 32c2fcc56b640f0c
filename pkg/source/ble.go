package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jwoglom/midistream/pkg/blemidi"
	"github.com/jwoglom/midistream/pkg/bluetooth"
	"github.com/jwoglom/midistream/pkg/midi"
	"github.com/jwoglom/midistream/pkg/stream"

	log "github.com/sirupsen/logrus"
)

// BLESource advertises a BLE-MIDI peripheral and decodes what a connected
// central writes to it
type BLESource struct {
	name    string
	timeout time.Duration
	start   time.Time

	ble   *bluetooth.Ble
	mutex sync.Mutex
}

// NewBLESource creates a source advertising as name. Partial messages are
// dropped after idleTimeout without packets.
func NewBLESource(name string, idleTimeout time.Duration) *BLESource {
	if name == "" {
		name = bluetooth.DefaultName
	}
	return &BLESource{
		name:    name,
		timeout: idleTimeout,
		start:   time.Now(),
	}
}

func (s *BLESource) String() string {
	return "ble " + s.name
}

// Run advertises until ctx is done
func (s *BLESource) Run(ctx context.Context, dec *stream.Decoder) error {
	receiver := blemidi.NewReceiver(dec, s.timeout)
	defer receiver.Stop()

	ble, err := bluetooth.New(s.name)
	if err != nil {
		return fmt.Errorf("could not start BLE: %w", err)
	}

	ble.SetPacketHandler(func(packet []byte) {
		blemidi.LogPacket("Received", packet)
		if err := receiver.AddPacket(packet); err != nil {
			log.Warnf("Dropped BLE-MIDI packet: %v", err)
		}
	})
	ble.SetConnectionHandler(func(connected bool) {
		log.Infof("BLE central connected: %v", connected)
		receiver.Reset()
	})

	s.mutex.Lock()
	s.ble = ble
	s.mutex.Unlock()

	<-ctx.Done()

	s.mutex.Lock()
	s.ble = nil
	s.mutex.Unlock()

	ble.ShutdownConnection()
	log.Debugf("BLE receiver stats: %v", receiver.GetStats())
	return nil
}

// Send frames msgs into BLE-MIDI packets and notifies the connected central
func (s *BLESource) Send(msgs ...midi.Message) error {
	s.mutex.Lock()
	ble := s.ble
	s.mutex.Unlock()

	if ble == nil || !ble.IsConnected() {
		return fmt.Errorf("no BLE central connected")
	}

	ts := uint16(time.Since(s.start).Milliseconds()) & blemidi.TimestampMask
	packets, err := blePackets(ts, msgs)
	if err != nil {
		return err
	}

	for _, packet := range packets {
		blemidi.LogPacket("Sending", packet)
		if err := ble.Notify(packet); err != nil {
			return fmt.Errorf("failed to send notification: %w", err)
		}
	}
	return nil
}

// blePackets frames msgs into one packet when they fit and splits them
// otherwise
func blePackets(ts uint16, msgs []midi.Message) ([][]byte, error) {
	packet, err := blemidi.Frame(ts, msgs...)
	if err == nil {
		return [][]byte{packet}, nil
	}
	if !errors.Is(err, blemidi.ErrPacketTooLarge) {
		return nil, err
	}
	return blemidi.Packetize(ts, blemidi.MaxPacketSize, msgs...)
}
