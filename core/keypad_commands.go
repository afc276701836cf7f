// Keypad command handling.
// Implements the host protocol for configuring, querying and polling
// matrix keypads.
package core

import (
	"keymat/protocol"
)

// KeypadPoller wraps a Keypad with timer-driven polling state. Polling
// repeats point-in-time scans and requires SampleCount consecutive
// identical results before reporting a transition, which is the bounce
// rejection the bare scanner deliberately leaves to its caller.
type KeypadPoller struct {
	OID    uint8
	Keypad *Keypad

	Timer       Timer
	RestTime    uint32 // Ticks between scan passes
	SampleCount uint8  // Consecutive identical scans required
	Polling     bool

	candidate    byte  // Last raw scan result
	seen         uint8 // Consecutive scans agreeing with candidate
	lastReported byte  // Last confirmed state sent to the host
}

// Global registry of configured keypads
var keypads = make(map[uint8]*KeypadPoller)

// InitKeypadCommands registers keypad-related commands
func InitKeypadCommands() {
	// Configure a keypad from pin lists and a flattened layout
	RegisterCommand("config_keypad", "oid=%c rows=%*s cols=%*s layout=%*s settle_us=%u", handleConfigKeypad)

	// Replace the layout on an existing keypad
	RegisterCommand("set_keypad_layout", "oid=%c layout=%*s", handleSetKeypadLayout)

	// One synchronous scan
	RegisterCommand("keypad_query", "oid=%c", handleKeypadQuery)

	// Start or stop timer-driven polling
	RegisterCommand("keypad_poll", "oid=%c clock=%u rest_ticks=%u sample_count=%c", handleKeypadPoll)

	// Responses: point-in-time state and confirmed transitions
	RegisterResponse("keypad_state", "oid=%c key=%c")
	RegisterResponse("keypad_key", "oid=%c key=%c pressed=%c clock=%u")
}

// handleConfigKeypad builds a scanner from the host's pin and layout
// configuration.
// Format: config_keypad oid=%c rows=%*s cols=%*s layout=%*s settle_us=%u
func handleConfigKeypad(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	rowBytes, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}

	colBytes, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}

	layoutBytes, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}

	settleUs, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	rows := make([]GPIOPin, len(rowBytes))
	for i, b := range rowBytes {
		rows[i] = GPIOPin(b)
	}
	cols := make([]GPIOPin, len(colBytes))
	for i, b := range colBytes {
		cols[i] = GPIOPin(b)
	}

	layout, err := LayoutFromFlat(len(rows), len(cols), layoutBytes)
	if err != nil {
		return err
	}

	keypad, err := NewKeypad(rows, cols, layout, settleUs)
	if err != nil {
		return err
	}

	// Reconfiguring an existing oid stops its poller first
	if old, exists := keypads[uint8(oid)]; exists {
		CancelTimer(&old.Timer)
	}

	keypads[uint8(oid)] = &KeypadPoller{
		OID:          uint8(oid),
		Keypad:       keypad,
		lastReported: NoKey,
	}

	return nil
}

// handleSetKeypadLayout installs a new layout on a configured keypad.
// The scanner is rebuilt so the dimension contract holds for its whole
// lifetime.
// Format: set_keypad_layout oid=%c layout=%*s
func handleSetKeypadLayout(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	layoutBytes, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}

	kp, exists := keypads[uint8(oid)]
	if !exists {
		return nil // Silently ignore if not configured
	}

	old := kp.Keypad
	layout, err := LayoutFromFlat(old.Rows(), old.Cols(), layoutBytes)
	if err != nil {
		return err
	}

	keypad, err := NewKeypad(old.rows, old.cols, layout, old.settleUs)
	if err != nil {
		return err
	}

	kp.Keypad = keypad
	return nil
}

// handleKeypadQuery performs one scan and reports the result.
// Format: keypad_query oid=%c
func handleKeypadQuery(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	kp, exists := keypads[uint8(oid)]
	if !exists {
		return nil // Silently ignore if not configured
	}

	key := kp.Keypad.Scan(MustDelay())

	SendResponse("keypad_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, oid)
		protocol.EncodeVLQUint(output, uint32(key))
	})

	return nil
}

// handleKeypadPoll starts or stops periodic scanning.
// Format: keypad_poll oid=%c clock=%u rest_ticks=%u sample_count=%c
func handleKeypadPoll(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	clock, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	restTicks, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	sampleCount, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	kp, exists := keypads[uint8(oid)]
	if !exists {
		return nil // Silently ignore if not configured
	}

	CancelTimer(&kp.Timer)

	// sample_count 0 stops polling
	if sampleCount == 0 {
		kp.Polling = false
		return nil
	}

	kp.RestTime = restTicks
	kp.SampleCount = uint8(sampleCount)
	kp.Polling = true
	kp.candidate = NoKey
	kp.seen = 0
	kp.lastReported = NoKey

	kp.Timer.WakeTime = clock
	kp.Timer.Handler = keypadPollEvent
	ScheduleTimer(&kp.Timer)

	return nil
}

// keypadPollEvent is the timer callback for periodic scanning
func keypadPollEvent(t *Timer) uint8 {
	// Find the poller that owns this timer
	var kp *KeypadPoller
	for _, kpPtr := range keypads {
		if kpPtr != nil && &kpPtr.Timer == t {
			kp = kpPtr
			break
		}
	}

	if kp == nil || !kp.Polling {
		return SF_DONE
	}

	key := kp.Keypad.Scan(MustDelay())

	if key == kp.candidate {
		if kp.seen < kp.SampleCount {
			kp.seen++
		}
	} else {
		kp.candidate = key
		kp.seen = 1
		if kp.SampleCount > 1 {
			RecordKeyEvent(EvtPollSkip, kp.OID, t.WakeTime, key)
		}
	}

	if kp.seen >= kp.SampleCount && kp.candidate != kp.lastReported {
		reportKeyTransition(kp, t.WakeTime)
	}

	t.WakeTime += kp.RestTime
	return SF_RESCHEDULE
}

// reportKeyTransition sends keypad_key responses for a confirmed state
// change. Moving directly from one key to another reports the release
// before the press.
func reportKeyTransition(kp *KeypadPoller, clock uint32) {
	if kp.lastReported != NoKey {
		RecordKeyEvent(EvtKeyUp, kp.OID, clock, kp.lastReported)
		sendKeypadKey(kp.OID, kp.lastReported, false, clock)
	}
	if kp.candidate != NoKey {
		RecordKeyEvent(EvtKeyDown, kp.OID, clock, kp.candidate)
		sendKeypadKey(kp.OID, kp.candidate, true, clock)
	}
	kp.lastReported = kp.candidate
}

func sendKeypadKey(oid uint8, key byte, pressed bool, clock uint32) {
	SendResponse("keypad_key", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, uint32(key))
		if pressed {
			protocol.EncodeVLQUint(output, 1)
		} else {
			protocol.EncodeVLQUint(output, 0)
		}
		protocol.EncodeVLQUint(output, clock)
	})
}

// ShutdownAllKeypads stops polling and releases all column lines
func ShutdownAllKeypads() {
	for _, kp := range keypads {
		if kp == nil {
			continue
		}
		CancelTimer(&kp.Timer)
		kp.Polling = false
		kp.Keypad.ReleaseColumns()
	}
}
