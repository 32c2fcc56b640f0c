package source

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/jwoglom/midistream/pkg/stream"

	expect "github.com/google/goexpect"
	log "github.com/sirupsen/logrus"
)

const amidiPollInterval = 250 * time.Millisecond

// dumpLinesRegex matches every complete line amidi has printed so far
var dumpLinesRegex = regexp.MustCompile(`(?s).*\n`)

// AmidiSource spawns ALSA's amidi in dump mode and feeds the bytes it prints
type AmidiSource struct {
	port    string
	command string
}

// AmidiPort is an entry of `amidi -l`
type AmidiPort struct {
	Dir    string
	Device string
	Name   string
}

// NewAmidiSource creates a source for an ALSA rawmidi device such as hw:1,0,0
func NewAmidiSource(port string) *AmidiSource {
	return &AmidiSource{
		port:    port,
		command: "amidi",
	}
}

func (s *AmidiSource) String() string {
	return "amidi " + s.port
}

// Run spawns amidi and feeds its dump until ctx is done or amidi exits
func (s *AmidiSource) Run(ctx context.Context, dec *stream.Decoder) error {
	fullCmd := fmt.Sprintf("%s -p %s -d", s.command, s.port)

	log.Infof("Starting amidi process: %s", fullCmd)
	gexp, _, err := expect.Spawn(fullCmd, -1,
		expect.CheckDuration(100*time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("failed to spawn amidi: %w", err)
	}
	defer func() {
		if err := gexp.Close(); err != nil {
			log.Debugf("Error closing amidi: %v", err)
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		output, matches, err := gexp.Expect(dumpLinesRegex, amidiPollInterval)
		if err != nil {
			var te expect.TimeoutError
			if errors.As(err, &te) {
				continue
			}
			return fmt.Errorf("amidi stopped: %w", err)
		}
		if len(matches) > 0 {
			output = matches[0]
		}

		data, skipped := parseDump(output)
		if skipped > 0 {
			log.Debugf("Skipped %d amidi lines without MIDI bytes", skipped)
		}
		if len(data) > 0 {
			dec.Feed(data)
		}
	}
}

// parseDump decodes the hex bytes amidi -d prints, one message per line.
// Lines that are not hex bytes are skipped and counted.
func parseDump(text string) ([]byte, int) {
	var data []byte
	skipped := 0

	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		lineData := make([]byte, 0, len(fields))
		ok := true
		for _, field := range fields {
			if len(field) != 2 {
				ok = false
				break
			}
			b, err := hex.DecodeString(field)
			if err != nil {
				ok = false
				break
			}
			lineData = append(lineData, b[0])
		}

		if !ok {
			skipped++
			continue
		}
		data = append(data, lineData...)
	}

	return data, skipped
}

// ListAmidiPorts runs `amidi -l` and returns the rawmidi devices it reports
func ListAmidiPorts() ([]AmidiPort, error) {
	cmd := exec.Command("amidi", "-l")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("amidi -l failed: %w\nStderr: %s", err, stderr.String())
	}

	return parseAmidiList(stdout.String()), nil
}

func parseAmidiList(output string) []AmidiPort {
	var ports []AmidiPort
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] == "Dir" {
			continue
		}
		ports = append(ports, AmidiPort{
			Dir:    fields[0],
			Device: fields[1],
			Name:   strings.Join(fields[2:], " "),
		})
	}
	return ports
}
