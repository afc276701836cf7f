package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"keymat/host/mcu"
	"keymat/host/serial"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file")
	device     = flag.String("device", "", "Serial device path (overrides config)")
	baud       = flag.Int("baud", 0, "Baud rate (ignored for USB CDC, overrides config)")
	verbose    = flag.Bool("verbose", false, "Enable verbose output")
)

var log = logrus.New()

// Config is the host-side YAML configuration.
type Config struct {
	Device  string       `yaml:"device"`
	Baud    int          `yaml:"baud"`
	Verbose bool         `yaml:"verbose"`
	Keypad  KeypadConfig `yaml:"keypad"`
}

// KeypadConfig describes the matrix to configure on connect. Rows and
// Cols are MCU GPIO numbers; Layout is the flattened row-major key map.
type KeypadConfig struct {
	OID         uint8  `yaml:"oid"`
	Rows        []int  `yaml:"rows"`
	Cols        []int  `yaml:"cols"`
	Layout      string `yaml:"layout"`
	SettleUs    uint32 `yaml:"settle_us"`
	RestTicks   uint32 `yaml:"rest_ticks"`
	SampleCount uint8  `yaml:"sample_count"`
}

func defaultConfig() *Config {
	return &Config{
		Device: "/dev/ttyACM0",
		Baud:   250000,
		Keypad: KeypadConfig{
			OID:         0,
			SettleUs:    1000,
			RestTicks:   10000,
			SampleCount: 2,
		},
	}
}

func loadConfig() (*Config, error) {
	cfg := defaultConfig()

	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Flags override the file
	if *device != "" {
		cfg.Device = *device
	}
	if *baud != 0 {
		cfg.Baud = *baud
	}
	if *verbose {
		cfg.Verbose = true
	}

	return cfg, nil
}

func main() {
	flag.Parse()

	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.InfoLevel)

	cfg, err := loadConfig()
	if err != nil {
		log.WithError(err).Fatal("configuration error")
	}
	if cfg.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	fmt.Println("Keymat Host - Matrix Keypad Controller")
	fmt.Println("======================================")

	mcuConn := mcu.NewMCU()

	log.WithField("device", cfg.Device).Info("connecting to MCU")
	serialCfg := serial.DefaultConfig(cfg.Device)
	serialCfg.Baud = cfg.Baud
	if err := mcuConn.ConnectWithConfig(serialCfg); err != nil {
		log.WithError(err).Fatal("failed to connect")
	}
	defer mcuConn.Close()

	if err := mcuConn.RetrieveDictionary(); err != nil {
		log.WithError(err).Fatal("failed to retrieve dictionary")
	}
	dict := mcuConn.GetDictionary()
	log.WithFields(logrus.Fields{
		"version":   dict.Version,
		"commands":  len(dict.Commands),
		"responses": len(dict.Responses),
	}).Info("dictionary retrieved")

	// Configure the keypad from the config file, if one was given
	if cfg.Keypad.Layout != "" {
		if err := configureKeypad(mcuConn, &cfg.Keypad); err != nil {
			log.WithError(err).Fatal("failed to configure keypad")
		}
		log.WithFields(logrus.Fields{
			"oid":  cfg.Keypad.OID,
			"rows": len(cfg.Keypad.Rows),
			"cols": len(cfg.Keypad.Cols),
		}).Info("keypad configured")
	}

	interactiveLoop(mcuConn, cfg)
}

func configureKeypad(mcuConn *mcu.MCU, kc *KeypadConfig) error {
	rows := make([]byte, len(kc.Rows))
	for i, p := range kc.Rows {
		rows[i] = byte(p)
	}
	cols := make([]byte, len(kc.Cols))
	for i, p := range kc.Cols {
		cols[i] = byte(p)
	}

	return mcuConn.ConfigKeypad(kc.OID, rows, cols, kc.Layout, kc.SettleUs)
}

func interactiveLoop(mcuConn *mcu.MCU, cfg *Config) {
	oid := cfg.Keypad.OID

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]

		switch cmd {
		case "quit", "exit", "q":
			fmt.Println("Goodbye!")
			return

		case "help", "?":
			printHelp()

		case "dict":
			mcuConn.PrintDictionary()

		case "raw":
			raw := mcuConn.GetDictionaryRaw()
			fmt.Printf("Raw dictionary data (%d bytes):\n%s\n", len(raw), string(raw))

		case "query":
			key, err := mcuConn.QueryKeypad(oid)
			if err != nil {
				log.WithError(err).Error("query failed")
				continue
			}
			if key == ' ' {
				fmt.Println("No key pressed")
			} else {
				fmt.Printf("Key pressed: %c\n", key)
			}

		case "read":
			fmt.Println("Waiting for a key press (30s timeout)...")
			if err := readOne(mcuConn, oid, cfg); err != nil {
				log.WithError(err).Error("read failed")
			}

		case "watch":
			seconds := 10
			if len(parts) > 1 {
				if n, err := strconv.Atoi(parts[1]); err == nil && n > 0 {
					seconds = n
				}
			}
			if err := watch(mcuConn, oid, cfg, seconds); err != nil {
				log.WithError(err).Error("watch failed")
			}

		case "layout":
			if len(parts) < 2 {
				fmt.Println("Usage: layout <flattened-layout-string>")
				continue
			}
			if err := mcuConn.SetKeypadLayout(oid, parts[1]); err != nil {
				log.WithError(err).Error("set layout failed")
				continue
			}
			fmt.Println("Layout updated")

		case "get_uptime":
			if err := mcuConn.SendCommand("get_uptime", nil); err != nil {
				log.WithError(err).Error("get_uptime failed")
			}

		case "get_clock":
			if err := mcuConn.SendCommand("get_clock", nil); err != nil {
				log.WithError(err).Error("get_clock failed")
			}

		default:
			fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", cmd)
		}
	}

	if err := scanner.Err(); err != nil {
		log.WithError(err).Fatal("error reading input")
	}
}

// readOne polls until the first confirmed key press, prints it, and
// stops polling again.
func readOne(mcuConn *mcu.MCU, oid uint8, cfg *Config) error {
	if err := mcuConn.StartPolling(oid, cfg.Keypad.RestTicks, cfg.Keypad.SampleCount); err != nil {
		return err
	}
	defer func() {
		if err := mcuConn.StopPolling(oid); err != nil {
			log.WithError(err).Warn("failed to stop polling")
		}
	}()

	key, err := mcuConn.ReadChar(oid, 30*time.Second)
	if err != nil {
		return err
	}

	fmt.Printf("Key pressed: %c\n", key)
	return nil
}

// watch streams confirmed key transitions for a fixed duration.
func watch(mcuConn *mcu.MCU, oid uint8, cfg *Config, seconds int) error {
	if err := mcuConn.StartPolling(oid, cfg.Keypad.RestTicks, cfg.Keypad.SampleCount); err != nil {
		return err
	}
	defer func() {
		if err := mcuConn.StopPolling(oid); err != nil {
			log.WithError(err).Warn("failed to stop polling")
		}
	}()

	fmt.Printf("Watching for key events for %ds (Ctrl-C to abort)...\n", seconds)
	deadline := time.After(time.Duration(seconds) * time.Second)

	for {
		select {
		case evt := <-mcuConn.Events():
			state := "released"
			if evt.Pressed {
				state = "pressed"
			}
			fmt.Printf("  [clock=%d] key %c %s\n", evt.Clock, evt.Key, state)
			log.WithFields(logrus.Fields{
				"oid":     evt.OID,
				"key":     string(evt.Key),
				"pressed": evt.Pressed,
				"clock":   evt.Clock,
			}).Debug("key event")
		case <-deadline:
			fmt.Println("Done watching")
			return nil
		}
	}
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  help           - Show this help message")
	fmt.Println("  dict           - Print dictionary summary")
	fmt.Println("  raw            - Print raw dictionary data")
	fmt.Println("  query          - One synchronous scan of the keypad")
	fmt.Println("  read           - Block until the next key press")
	fmt.Println("  watch [secs]   - Stream key events (default 10s)")
	fmt.Println("  layout <str>   - Replace the keypad layout")
	fmt.Println("  get_uptime     - Get MCU uptime")
	fmt.Println("  get_clock      - Get MCU clock")
	fmt.Println("  quit/exit/q    - Exit the program")
	fmt.Println()
}
