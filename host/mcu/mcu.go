package mcu

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"keymat/host/serial"
	"keymat/protocol"
)

// KeyEvent is a confirmed key transition reported by the firmware.
type KeyEvent struct {
	OID     uint8
	Key     byte
	Pressed bool
	Clock   uint32
}

// MCU represents a connection to a keypad controller
type MCU struct {
	transport *protocol.HostTransport
	port      serial.Port

	dictionary     *Dictionary
	dictionaryData []byte

	// Cached response ids resolved from the dictionary
	keypadStateID int
	keypadKeyID   int

	events chan KeyEvent

	connected bool
}

// Dictionary represents the parsed firmware dictionary
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`
}

// CommandID resolves a command id by name. Dictionary keys are full
// format strings ("name arg=%c ..."), so lookup matches on the name.
func (d *Dictionary) CommandID(name string) (int, bool) {
	return lookupByName(d.Commands, name)
}

// ResponseID resolves a response id by name.
func (d *Dictionary) ResponseID(name string) (int, bool) {
	return lookupByName(d.Responses, name)
}

func lookupByName(entries map[string]int, name string) (int, bool) {
	for format, id := range entries {
		if format == name || strings.HasPrefix(format, name+" ") {
			return id, true
		}
	}
	return 0, false
}

// NewMCU creates a new MCU instance (not yet connected)
func NewMCU() *MCU {
	return &MCU{
		keypadStateID: -1,
		keypadKeyID:   -1,
		events:        make(chan KeyEvent, 16),
	}
}

// Connect connects to an MCU via serial port
func (m *MCU) Connect(device string) error {
	return m.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig connects to an MCU with a custom serial config
func (m *MCU) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	m.port = port
	m.transport = protocol.NewHostTransport(port)
	m.connected = true

	m.transport.SetResponseHandler(m.handleResponse)

	// Give the MCU time to initialize if it just powered on
	time.Sleep(100 * time.Millisecond)

	return nil
}

// Close closes the connection to the MCU
func (m *MCU) Close() error {
	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			return err
		}
	}
	m.connected = false
	return nil
}

// RetrieveDictionary retrieves the complete dictionary from the MCU in
// chunks via the identify command.
func (m *MCU) RetrieveDictionary() error {
	if !m.connected {
		return fmt.Errorf("not connected to MCU")
	}

	var dictBuffer bytes.Buffer
	offset := uint32(0)
	chunkSize := uint8(40)
	maxIterations := 1000 // Safety limit

	for i := 0; i < maxIterations; i++ {
		chunk, err := m.sendIdentify(offset, chunkSize)
		if err != nil {
			return fmt.Errorf("failed to retrieve dictionary chunk at offset %d: %w", offset, err)
		}

		if len(chunk) == 0 {
			break
		}

		dictBuffer.Write(chunk)
		offset += uint32(len(chunk))

		// A short chunk means the dictionary is exhausted
		if len(chunk) < int(chunkSize) {
			break
		}
	}

	m.dictionaryData = dictBuffer.Bytes()

	if err := m.parseDictionary(); err != nil {
		return fmt.Errorf("failed to parse dictionary: %w", err)
	}

	return nil
}

// sendIdentify sends an identify command and waits for the response
func (m *MCU) sendIdentify(offset uint32, count uint8) ([]byte, error) {
	// identify is hardcoded as command id 1; the dictionary is not
	// available yet when this runs
	err := m.transport.SendCommand(1, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, uint32(count))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send identify command: %w", err)
	}

	resp, err := m.transport.ReceiveResponse(1 * time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to receive identify response: %w", err)
	}

	// Response payload: cmdID (VLQ), offset (VLQ), data (VLQ bytes)
	payload := resp.Payload

	cmdID, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response command ID: %w", err)
	}
	if cmdID != 0 {
		return nil, fmt.Errorf("unexpected response command ID: %d (expected 0)", cmdID)
	}

	respOffset, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response offset: %w", err)
	}
	if respOffset != offset {
		return nil, fmt.Errorf("offset mismatch: expected %d, got %d", offset, respOffset)
	}

	data, err := protocol.DecodeVLQBytes(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response data: %w", err)
	}

	return data, nil
}

// parseDictionary parses the dictionary JSON and caches the keypad
// response ids.
func (m *MCU) parseDictionary() error {
	dict := &Dictionary{}
	if err := json.Unmarshal(m.dictionaryData, dict); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	m.dictionary = dict

	if id, ok := dict.ResponseID("keypad_state"); ok {
		m.keypadStateID = id
	}
	if id, ok := dict.ResponseID("keypad_key"); ok {
		m.keypadKeyID = id
	}

	return nil
}

// handleResponse handles responses from the MCU (async callback). Key
// transition reports are decoded here and delivered to Events().
func (m *MCU) handleResponse(cmdID uint16, data *[]byte) error {
	if m.keypadKeyID < 0 || int(cmdID) != m.keypadKeyID {
		return nil
	}

	// keypad_key oid=%c key=%c pressed=%c clock=%u
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	key, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	pressed, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	clock, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	evt := KeyEvent{
		OID:     uint8(oid),
		Key:     byte(key),
		Pressed: pressed != 0,
		Clock:   clock,
	}

	// Drop the oldest event if the consumer is not keeping up
	select {
	case m.events <- evt:
	default:
		select {
		case <-m.events:
		default:
		}
		m.events <- evt
	}

	return nil
}

// Events returns the channel of confirmed key transitions. Events are
// only produced while polling is active.
func (m *MCU) Events() <-chan KeyEvent {
	return m.events
}

// GetDictionary returns the parsed dictionary
func (m *MCU) GetDictionary() *Dictionary {
	return m.dictionary
}

// GetDictionaryRaw returns the raw dictionary data
func (m *MCU) GetDictionaryRaw() []byte {
	return m.dictionaryData
}

// SendCommand sends a command to the MCU, resolving its id through the
// dictionary.
func (m *MCU) SendCommand(name string, args func(output protocol.OutputBuffer)) error {
	if !m.connected {
		return fmt.Errorf("not connected to MCU")
	}
	if m.dictionary == nil {
		return fmt.Errorf("dictionary not loaded")
	}

	cmdID, ok := m.dictionary.CommandID(name)
	if !ok {
		return fmt.Errorf("unknown command: %s", name)
	}

	return m.transport.SendCommand(uint16(cmdID), args)
}

// ConfigKeypad configures a matrix keypad scanner on the MCU.
// The layout is flattened row-major; its length must equal
// len(rows)*len(cols).
func (m *MCU) ConfigKeypad(oid uint8, rows, cols []byte, layout string, settleUs uint32) error {
	if len(layout) != len(rows)*len(cols) {
		return fmt.Errorf("layout length %d does not match %dx%d matrix",
			len(layout), len(rows), len(cols))
	}

	return m.SendCommand("config_keypad", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQBytes(output, rows)
		protocol.EncodeVLQBytes(output, cols)
		protocol.EncodeVLQBytes(output, []byte(layout))
		protocol.EncodeVLQUint(output, settleUs)
	})
}

// SetKeypadLayout replaces the layout on a configured keypad.
func (m *MCU) SetKeypadLayout(oid uint8, layout string) error {
	return m.SendCommand("set_keypad_layout", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQBytes(output, []byte(layout))
	})
}

// QueryKeypad performs one synchronous scan and returns the layout
// character of the first pressed key, or the no-key sentinel ' '.
func (m *MCU) QueryKeypad(oid uint8) (byte, error) {
	if err := m.SendCommand("keypad_query", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
	}); err != nil {
		return 0, err
	}

	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := m.transport.ReceiveResponse(time.Until(deadline))
		if err != nil {
			return 0, fmt.Errorf("no keypad_state response: %w", err)
		}

		payload := resp.Payload
		cmdID, err := protocol.DecodeVLQUint(&payload)
		if err != nil || int(cmdID) != m.keypadStateID {
			// Some other async response; keep waiting
			continue
		}

		respOID, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return 0, err
		}
		if uint8(respOID) != oid {
			continue
		}

		key, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return 0, err
		}
		return byte(key), nil
	}

	return 0, fmt.Errorf("keypad_state response timeout")
}

// StartPolling starts timer-driven polling on the MCU. restTicks is
// the pause between scan passes in MCU clock ticks; sampleCount is the
// number of consecutive identical scans required before a transition
// is reported.
func (m *MCU) StartPolling(oid uint8, restTicks uint32, sampleCount uint8) error {
	if sampleCount == 0 {
		return fmt.Errorf("sample count must be at least 1")
	}
	return m.SendCommand("keypad_poll", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, 0) // clock: start immediately
		protocol.EncodeVLQUint(output, restTicks)
		protocol.EncodeVLQUint(output, uint32(sampleCount))
	})
}

// StopPolling stops timer-driven polling on the MCU.
func (m *MCU) StopPolling(oid uint8) error {
	return m.SendCommand("keypad_poll", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, 0)
		protocol.EncodeVLQUint(output, 0)
		protocol.EncodeVLQUint(output, 0) // sample_count=0 cancels
	})
}

// ReadChar blocks until a key press event arrives and returns its
// layout character. Polling must already be active.
func (m *MCU) ReadChar(oid uint8, timeout time.Duration) (byte, error) {
	deadline := time.After(timeout)
	for {
		select {
		case evt := <-m.events:
			if evt.OID == oid && evt.Pressed {
				return evt.Key, nil
			}
		case <-deadline:
			return 0, fmt.Errorf("no key press within %v", timeout)
		}
	}
}

// IsConnected returns whether the MCU is connected
func (m *MCU) IsConnected() bool {
	return m.connected
}

// PrintDictionary prints a summary of the dictionary
func (m *MCU) PrintDictionary() {
	if m.dictionary == nil {
		fmt.Println("No dictionary loaded")
		return
	}

	fmt.Println("\n=== MCU Dictionary ===")
	fmt.Printf("Version: %s\n", m.dictionary.Version)
	fmt.Printf("Build: %s\n", m.dictionary.BuildVersions)

	fmt.Println("\nConfig:")
	for k, v := range m.dictionary.Config {
		fmt.Printf("  %s = %s\n", k, v)
	}

	fmt.Printf("\nCommands (%d):\n", len(m.dictionary.Commands))
	for name, id := range m.dictionary.Commands {
		fmt.Printf("  [%d] %s\n", id, name)
	}

	fmt.Printf("\nResponses (%d):\n", len(m.dictionary.Responses))
	for name, id := range m.dictionary.Responses {
		fmt.Printf("  [%d] %s\n", id, name)
	}

	if len(m.dictionary.Enumerations) > 0 {
		fmt.Printf("\nEnumerations (%d):\n", len(m.dictionary.Enumerations))
		for name, values := range m.dictionary.Enumerations {
			fmt.Printf("  %s: %d values\n", name, len(values))
		}
	}

	fmt.Println("======================")
}
