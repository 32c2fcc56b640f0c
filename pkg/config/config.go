package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jwoglom/midistream/pkg/parser"
)

// Source names
const (
	SourceStdin = "stdin"
	SourceFile  = "file"
	SourcePort  = "port"
	SourceAmidi = "amidi"
	SourceBLE   = "ble"
)

// MaxSysExCapacity bounds the SysEx buffer a user can ask for
const MaxSysExCapacity = 1 << 20

// UnsetCapacity asks New to take the SysEx capacity from the environment
const UnsetCapacity = -1

// Config holds the decoder configuration
type Config struct {
	// Where bytes come from
	Source string
	Input  string // file path, port name or BLE advertised name

	// Decoder configuration
	SysExCapacity int
	IdleTimeout   time.Duration

	// Monitoring
	Listen string
	TUI    bool

	// Logging configuration
	LogLevel string
}

// New creates a new configuration
func New(source, input string, sysexCapacity int, logLevel string) (*Config, error) {
	// Check for environment variables if not provided
	if source == "" {
		source = os.Getenv("MIDISTREAM_SOURCE")
	}
	if source == "" {
		source = SourceStdin
	}

	if input == "" {
		input = os.Getenv("MIDISTREAM_PORT")
	}

	if sysexCapacity == UnsetCapacity {
		sysexCapacity = parser.DefaultSysExCapacity
		if env := os.Getenv("MIDISTREAM_SYSEX_CAPACITY"); env != "" {
			n, err := strconv.Atoi(env)
			if err != nil {
				return nil, fmt.Errorf("invalid MIDISTREAM_SYSEX_CAPACITY %q: %w", env, err)
			}
			sysexCapacity = n
		}
	}

	if sysexCapacity < 0 || sysexCapacity > MaxSysExCapacity {
		return nil, fmt.Errorf("sysex capacity %d out of range (0 to %d)", sysexCapacity, MaxSysExCapacity)
	}

	switch source {
	case SourceStdin, SourceBLE:
	case SourceFile, SourcePort, SourceAmidi:
		if input == "" {
			return nil, fmt.Errorf("source %s requires an input (use -input flag or MIDISTREAM_PORT environment variable)", source)
		}
	default:
		return nil, fmt.Errorf("invalid source: %s (must be one of stdin, file, port, amidi, ble)", source)
	}

	if source == SourceFile {
		if _, err := os.Stat(input); os.IsNotExist(err) {
			return nil, fmt.Errorf("input file does not exist: %s", input)
		}
	}

	return &Config{
		Source:        source,
		Input:         input,
		SysExCapacity: sysexCapacity,
		LogLevel:      logLevel,
	}, nil
}
