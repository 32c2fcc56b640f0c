package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/jwoglom/midistream/pkg/midi"
	"github.com/jwoglom/midistream/pkg/stream"

	log "github.com/sirupsen/logrus"
	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

// PortSource listens on a MIDI input port of the system driver. Messages the
// driver delivers are fed back to the decoder byte by byte. Send writes to
// the output port with the same name.
type PortSource struct {
	name string

	send  func(msg gomidi.Message) error
	mutex sync.Mutex
}

// NewPortSource creates a source for the first input port whose name
// contains name
func NewPortSource(name string) *PortSource {
	return &PortSource{name: name}
}

func (s *PortSource) String() string {
	return "port " + s.name
}

// Run listens until ctx is done or the driver reports an error
func (s *PortSource) Run(ctx context.Context, dec *stream.Decoder) error {
	in, err := gomidi.FindInPort(s.name)
	if err != nil {
		return fmt.Errorf("can't find input %q: %w", s.name, err)
	}

	errCh := make(chan error, 1)
	stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, timestampms int32) {
		log.Tracef("Port %s delivered % X at %dms", in, []byte(msg), timestampms)
		dec.Feed(msg)
	},
		gomidi.UseSysEx(),
		gomidi.UseTimeCode(),
		gomidi.UseActiveSense(),
		gomidi.HandleError(func(listenErr error) {
			select {
			case errCh <- listenErr:
			default:
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to start MIDI listener on %s: %w", in, err)
	}
	defer stop()

	log.Infof("Listening on MIDI input %s", in)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return fmt.Errorf("MIDI listener error on %s: %w", in, err)
	}
}

// Send writes msgs to the first output port whose name contains the source's
// name. The port is opened on first use.
func (s *PortSource) Send(msgs ...midi.Message) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.send == nil {
		out, err := gomidi.FindOutPort(s.name)
		if err != nil {
			return fmt.Errorf("can't find output %q: %w", s.name, err)
		}
		send, err := gomidi.SendTo(out)
		if err != nil {
			return fmt.Errorf("failed to open MIDI output %s: %w", out, err)
		}
		log.Infof("Sending to MIDI output %s", out)
		s.send = send
	}

	for _, msg := range msgs {
		if msg.Kind == midi.KindNone {
			continue
		}
		if err := s.send(msg.Gomidi()); err != nil {
			return fmt.Errorf("failed to send %s: %w", msg, err)
		}
	}
	return nil
}

// ListPorts returns the names of the available MIDI input ports
func ListPorts() []string {
	var names []string
	for _, in := range gomidi.GetInPorts() {
		names = append(names, in.String())
	}
	return names
}

// ClosePorts closes the system MIDI driver
func ClosePorts() {
	gomidi.CloseDriver()
}
