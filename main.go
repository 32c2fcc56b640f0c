package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jwoglom/midistream/pkg/api"
	"github.com/jwoglom/midistream/pkg/blemidi"
	"github.com/jwoglom/midistream/pkg/config"
	"github.com/jwoglom/midistream/pkg/handler"
	"github.com/jwoglom/midistream/pkg/monitor"
	"github.com/jwoglom/midistream/pkg/source"
	"github.com/jwoglom/midistream/pkg/stream"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
)

func main() {
	// if both verbose and quiet are chosen, e.g., -v -q, the verbose dominates
	var traceLevel = flag.Bool("v", false, "verbose off by default, TraceLevel")
	var infoLevel = flag.Bool("q", false, "quiet off by default, InfoLevel")

	var configPath = flag.String("config", "", "config file (default ~/.config/midistream/config.json)")
	var saveConfig = flag.Bool("save-config", false, "write the effective settings to the config file and exit")
	var sourceName = flag.String("source", "", "byte source: stdin, file, port, amidi or ble (or MIDISTREAM_SOURCE)")
	var input = flag.String("input", "", "file path, MIDI port name, ALSA device or BLE name (or MIDISTREAM_PORT)")
	var sysex = flag.Int("sysex", config.UnsetCapacity, "SysEx buffer capacity in bytes (or MIDISTREAM_SYSEX_CAPACITY)")
	var listen = flag.String("listen", "", "address for the monitor API, e.g. :8080 (empty disables it)")
	var tui = flag.Bool("tui", false, "show the terminal monitor")
	var idleTimeout = flag.Duration("idle-timeout", blemidi.DefaultIdleTimeout, "drop a partial BLE-MIDI message after this long without packets")
	var list = flag.Bool("list", false, "list MIDI input ports and exit")

	flag.Parse()

	logLevel := "debug"
	if *traceLevel {
		log.SetLevel(log.TraceLevel)
		logLevel = "trace"
	} else if *infoLevel {
		log.SetLevel(log.InfoLevel)
		logLevel = "info"
	} else {
		log.SetLevel(log.DebugLevel)
	}

	log.SetFormatter(&logrus.TextFormatter{
		DisableQuote: true,
		ForceColors:  true,
	})

	if *list {
		listPorts()
		return
	}

	path := *configPath
	if path == "" {
		var err error
		if path, err = config.DefaultFile(); err != nil {
			log.Fatalf("Could not locate config file: %s", err)
		}
	}
	file, err := config.Load(path)
	if err != nil {
		log.Fatalf("Could not load config file %s: %s", path, err)
	}

	// flags override the config file
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["source"] {
		*sourceName = file.Source
	}
	if !set["input"] {
		*input = file.Input
	}
	if !set["sysex"] && file.SysExCapacity != nil {
		*sysex = *file.SysExCapacity
	}
	if !set["listen"] {
		*listen = file.Listen
	}
	if !set["idle-timeout"] && file.IdleTimeout != "" {
		d, err := time.ParseDuration(file.IdleTimeout)
		if err != nil {
			log.Fatalf("Invalid idleTimeout in %s: %s", path, err)
		}
		*idleTimeout = d
	}

	cfg, err := config.New(*sourceName, *input, *sysex, logLevel)
	if err != nil {
		log.Fatalf("Invalid configuration: %s", err)
	}
	cfg.Listen = *listen
	cfg.TUI = *tui
	cfg.IdleTimeout = *idleTimeout

	if *saveConfig {
		capacity := cfg.SysExCapacity
		out := &config.File{
			Source:        cfg.Source,
			Input:         cfg.Input,
			SysExCapacity: &capacity,
			Listen:        cfg.Listen,
			IdleTimeout:   cfg.IdleTimeout.String(),
		}
		if err := out.Save(path); err != nil {
			log.Fatalf("Could not save config file %s: %s", path, err)
		}
		log.Infof("Saved configuration to %s", path)
		return
	}

	if cfg.TUI {
		logFile, err := openLogFile(path)
		if err != nil {
			log.Fatalf("Could not open log file: %s", err)
		}
		defer logFile.Close()
		log.SetOutput(logFile)
		log.SetFormatter(&logrus.TextFormatter{DisableQuote: true})
	}

	if err := run(cfg); err != nil {
		log.Fatalf("%s", err)
	}
}

func run(cfg *config.Config) error {
	if cfg.TUI && cfg.Source == config.SourceStdin {
		return fmt.Errorf("the terminal monitor reads keys from stdin; choose another -source")
	}

	router := handler.NewRouter()
	router.SetDefaultHandler(handler.NewLogHandler())

	dec := stream.NewDecoder(cfg.SysExCapacity, router)

	src, err := source.New(cfg)
	if err != nil {
		return err
	}
	defer source.ClosePorts()

	log.Info("Starting MIDI stream decoder")
	log.Infof("Source: %s, SysEx capacity: %d bytes", src, cfg.SysExCapacity)

	if cfg.Listen != "" {
		srv := api.New(dec)
		if sender, ok := src.(api.Sender); ok {
			srv.SetSender(sender)
		}
		router.AddObserver(srv)
		go func() {
			if err := srv.Start(cfg.Listen); err != nil {
				log.Errorf("HTTP server failed: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.TUI {
		err = src.Run(ctx, dec)
		log.Infof("Decoder stats: %v", dec.GetStats())
		return err
	}

	mh := monitor.NewHandler()
	router.AddObserver(mh)

	p := tea.NewProgram(monitor.NewModel(dec, mh, src.String()), tea.WithAltScreen())

	errCh := make(chan error, 1)
	go func() {
		errCh <- src.Run(ctx, dec)
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("monitor failed: %w", err)
	}
	stop()

	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		log.Warn("Source did not stop in time")
		return nil
	}
}

func listPorts() {
	defer source.ClosePorts()

	fmt.Println("MIDI input ports:")
	for i, name := range source.ListPorts() {
		fmt.Printf("  %d: %s\n", i, name)
	}

	ports, err := source.ListAmidiPorts()
	if err != nil {
		log.Debugf("amidi not available: %v", err)
		return
	}
	fmt.Println("ALSA rawmidi devices:")
	for _, p := range ports {
		fmt.Printf("  %-4s %-12s %s\n", p.Dir, p.Device, p.Name)
	}
}

// openLogFile opens debug.log next to the config file, truncating it
func openLogFile(configPath string) (*os.File, error) {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, "debug.log"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
}
