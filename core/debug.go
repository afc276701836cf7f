package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// KeyEvent captures a key transition for post-mortem analysis.
type KeyEvent struct {
	EventType uint8  // Event type code
	OID       uint8  // Keypad object ID
	Clock     uint32 // System clock at event
	Key       byte   // Key byte, or NoKey
}

// Event type codes
const (
	EvtKeyDown  = 1 // Confirmed key press
	EvtKeyUp    = 2 // Confirmed key release
	EvtPollSkip = 3 // Sample discarded by debounce confirmation
)

const (
	// KeyEventRingSize is the number of events retained for post-mortem.
	KeyEventRingSize = 32
)

var (
	// debugPrintln is the global debug print function (set by platform code)
	debugPrintln DebugWriter = func(s string) {}

	// debugEnabled controls whether debug output is active; off by
	// default so scan timing stays undisturbed
	debugEnabled bool = false

	eventRing     [KeyEventRingSize]KeyEvent
	eventRingHead uint8
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// RecordKeyEvent captures a key event in the ring buffer. Non-blocking
// and safe to call from timer handlers.
func RecordKeyEvent(eventType, oid uint8, clock uint32, key byte) {
	idx := eventRingHead
	eventRing[idx] = KeyEvent{
		EventType: eventType,
		OID:       oid,
		Clock:     clock,
		Key:       key,
	}
	eventRingHead = (idx + 1) % KeyEventRingSize
}

// DumpKeyEventRing outputs the retained key events, oldest first.
func DumpKeyEventRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[KEYS] === Key Event Dump ===")

	start := eventRingHead
	for i := uint8(0); i < KeyEventRingSize; i++ {
		idx := (start + i) % KeyEventRingSize
		evt := &eventRing[idx]
		if evt.EventType == 0 {
			continue // Empty slot
		}

		var name string
		switch evt.EventType {
		case EvtKeyDown:
			name = "KEY_DOWN"
		case EvtKeyUp:
			name = "KEY_UP"
		case EvtPollSkip:
			name = "POLL_SKIP"
		default:
			name = "UNKNOWN"
		}

		debugPrintln("[KEYS] " + name +
			" oid=" + itoa(int(evt.OID)) +
			" clock=" + utoa(evt.Clock) +
			" key=" + string([]byte{evt.Key}))
	}
	debugPrintln("[KEYS] === End Dump ===")
}

// ClearKeyEventRing clears the event buffer.
func ClearKeyEventRing() {
	for i := range eventRing {
		eventRing[i] = KeyEvent{}
	}
	eventRingHead = 0
}
