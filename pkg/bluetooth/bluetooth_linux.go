//go:build linux

package bluetooth

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/paypal/gatt"
	"github.com/paypal/gatt/linux/cmd"
	log "github.com/sirupsen/logrus"
)

const (
	deviceInformationServiceUUID   = "180A"
	manufacturerNameStringCharUUID = "2A29"
	modelNumberStringCharUUID      = "2A24"
)

// Ble represents the Bluetooth Low Energy device
type Ble struct {
	device *gatt.Device
	name   string

	central    gatt.Central
	centralMtx sync.RWMutex

	notifier    gatt.Notifier
	notifierMtx sync.Mutex

	// Handlers
	packetHandler     PacketHandler
	connectionHandler ConnectionHandler
	handlerMtx        sync.RWMutex
}

// DefaultServerOptions contains the default options for the BLE server on Linux
var DefaultServerOptions = []gatt.Option{
	gatt.LnxMaxConnections(1),
	gatt.LnxDeviceID(-1, true),
	gatt.LnxSetAdvertisingParameters(&cmd.LESetAdvertisingParameters{
		AdvertisingIntervalMin: 0x00f4,
		AdvertisingIntervalMax: 0x00f4,
		AdvertisingChannelMap:  0x7,
	}),
}

// New creates a new BLE device advertising the MIDI service as name
func New(name string) (*Ble, error) {
	if name == "" {
		name = DefaultName
	}

	d, err := gatt.NewDevice(DefaultServerOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}

	b := &Ble{
		device: &d,
		name:   name,
	}

	d.Handle(
		gatt.CentralConnected(func(c gatt.Central) {
			log.Infof("pkg bluetooth; new connection from %s", c.ID())
			b.centralMtx.Lock()
			b.central = c
			b.centralMtx.Unlock()
			b.notifyConnection(true)
		}),
		gatt.CentralDisconnected(func(c gatt.Central) {
			log.Infof("pkg bluetooth; disconnect: %s", c.ID())
			b.centralMtx.Lock()
			b.central = nil
			b.centralMtx.Unlock()
			b.notifierMtx.Lock()
			b.notifier = nil
			b.notifierMtx.Unlock()
			b.notifyConnection(false)
		}),
	)

	onStateChanged := func(d gatt.Device, s gatt.State) {
		log.Debugf("pkg bluetooth; state: %s", s)
		switch s {
		case gatt.StatePoweredOn:
			if err := b.setupService(d); err != nil {
				log.Errorf("pkg bluetooth; %v", err)
			}
		default:
		}
	}

	if err := d.Init(onStateChanged); err != nil {
		return nil, fmt.Errorf("could not init bluetooth: %w", err)
	}

	return b, nil
}

// setupService creates the MIDI service and starts advertising it
func (b *Ble) setupService(d gatt.Device) error {
	if err := b.addDeviceInformationService(d); err != nil {
		return err
	}

	serviceUUID := gatt.MustParseUUID(MIDIServiceUUID)
	s := gatt.NewService(serviceUUID)
	b.addMIDICharacteristic(s)

	if err := d.AddService(s); err != nil {
		return fmt.Errorf("could not add MIDI service: %w", err)
	}

	if err := d.AdvertiseNameAndServices(b.name, []gatt.UUID{serviceUUID}); err != nil {
		return fmt.Errorf("could not advertise: %w", err)
	}

	log.Infof("pkg bluetooth; advertising %q with service %s", b.name, MIDIServiceUUID)
	return nil
}

func (b *Ble) addDeviceInformationService(d gatt.Device) error {
	s := gatt.NewService(gatt.MustParseUUID(deviceInformationServiceUUID))

	addReadOnlyCharacteristic(s, manufacturerNameStringCharUUID, []byte("midistream"))
	addReadOnlyCharacteristic(s, modelNumberStringCharUUID, []byte(b.name))

	if err := d.AddService(s); err != nil {
		return fmt.Errorf("could not add Device Information service: %w", err)
	}
	return nil
}

func addReadOnlyCharacteristic(s *gatt.Service, uuidStr string, value []byte) {
	char := s.AddCharacteristic(gatt.MustParseUUID(uuidStr))
	char.HandleReadFunc(func(rsp gatt.ResponseWriter, req *gatt.ReadRequest) {
		if _, err := rsp.Write(value); err != nil {
			log.Warnf("Failed to write BLE response: %v", err)
		}
	})
}

// addMIDICharacteristic adds the MIDI I/O characteristic. Reads return no
// payload, writes carry packets from the central, notifications carry ours.
func (b *Ble) addMIDICharacteristic(s *gatt.Service) {
	char := s.AddCharacteristic(gatt.MustParseUUID(MIDIIOCharUUID))

	char.HandleReadFunc(func(rsp gatt.ResponseWriter, req *gatt.ReadRequest) {
		log.Trace("pkg bluetooth; read request on MIDI characteristic")
		if _, err := rsp.Write([]byte{}); err != nil {
			log.Warnf("Failed to write BLE response: %v", err)
		}
	})

	char.HandleWriteFunc(func(r gatt.Request, data []byte) (status byte) {
		log.Tracef("pkg bluetooth; received packet: %s", hex.EncodeToString(data))

		packet := make([]byte, len(data))
		copy(packet, data)

		b.handlerMtx.RLock()
		handler := b.packetHandler
		b.handlerMtx.RUnlock()
		if handler != nil {
			handler(packet)
		}
		return 0
	})

	char.HandleNotifyFunc(func(r gatt.Request, n gatt.Notifier) {
		b.notifierMtx.Lock()
		b.notifier = n
		b.notifierMtx.Unlock()
		log.Infof("pkg bluetooth; notifications enabled from %s", r.Central.ID())
	})
}

// SetPacketHandler sets the callback for packets written by a central
func (b *Ble) SetPacketHandler(handler PacketHandler) {
	b.handlerMtx.Lock()
	defer b.handlerMtx.Unlock()
	b.packetHandler = handler
}

// SetConnectionHandler sets the callback for when a central connects or disconnects
func (b *Ble) SetConnectionHandler(handler ConnectionHandler) {
	b.handlerMtx.Lock()
	defer b.handlerMtx.Unlock()
	b.connectionHandler = handler
}

func (b *Ble) notifyConnection(connected bool) {
	b.handlerMtx.RLock()
	handler := b.connectionHandler
	b.handlerMtx.RUnlock()
	if handler != nil {
		handler(connected)
	}
}

// Notify sends a packet to the subscribed central
func (b *Ble) Notify(packet []byte) error {
	b.notifierMtx.Lock()
	notifier := b.notifier
	b.notifierMtx.Unlock()

	if notifier == nil {
		return fmt.Errorf("no central subscribed to notifications")
	}
	if notifier.Done() {
		return fmt.Errorf("notifier is closed")
	}

	log.Tracef("pkg bluetooth; sending notification: %s", hex.EncodeToString(packet))
	_, err := notifier.Write(packet)
	return err
}

// IsConnected returns true if a central device is connected
func (b *Ble) IsConnected() bool {
	b.centralMtx.RLock()
	defer b.centralMtx.RUnlock()
	return b.central != nil
}

// ShutdownConnection closes the connection with the central device
func (b *Ble) ShutdownConnection() {
	b.centralMtx.RLock()
	c := b.central
	b.centralMtx.RUnlock()

	if c != nil {
		if err := c.Close(); err != nil {
			log.Debugf("Error closing central connection: %v", err)
		}
	}
}
