package core

import (
	"testing"

	"keymat/protocol"
)

// setupKeypadCommands resets the global command state and registers the
// keypad commands against a fresh mock HAL.
func setupKeypadCommands(t *testing.T) (*mockGPIODriver, *protocol.ScratchOutput) {
	t.Helper()

	globalRegistry = NewCommandRegistry()
	globalDictionary = NewDictionary(globalRegistry)
	keypads = make(map[uint8]*KeypadPoller)
	timerList = nil

	mock := newMockGPIODriver()
	SetGPIODriver(mock)
	SetDelaySource(&recordingDelay{})

	InitKeypadCommands()

	scratch := protocol.NewScratchOutput()
	SetGlobalTransport(protocol.NewTransport(scratch, nil))

	return mock, scratch
}

func encodeArgs(fn func(output protocol.OutputBuffer)) []byte {
	output := protocol.NewScratchOutput()
	fn(output)
	return output.Result()
}

func configTestKeypad(t *testing.T, oid uint8) {
	t.Helper()

	data := encodeArgs(func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, uint32(oid))
		protocol.EncodeVLQBytes(o, []byte{2, 3, 4, 5}) // row pins
		protocol.EncodeVLQBytes(o, []byte{6, 7, 8})    // column pins
		protocol.EncodeVLQBytes(o, []byte("123456789*0#"))
		protocol.EncodeVLQUint(o, DefaultSettleUs)
	})
	if err := handleConfigKeypad(&data); err != nil {
		t.Fatalf("config_keypad failed: %v", err)
	}
}

// decodeResponses parses every framed response out of the transport's
// output buffer, returning the VLQ integers of each payload.
func decodeResponses(t *testing.T, data []byte) [][]uint32 {
	t.Helper()

	var out [][]uint32
	for len(data) > 0 {
		msgLen := int(data[protocol.MessagePositionLen])
		if msgLen < protocol.MessageLengthMin || msgLen > len(data) {
			t.Fatalf("malformed response stream, length byte %d", msgLen)
		}
		payload := data[protocol.MessageHeaderSize : msgLen-protocol.MessageTrailerSize]

		var fields []uint32
		for len(payload) > 0 {
			v, err := protocol.DecodeVLQUint(&payload)
			if err != nil {
				t.Fatalf("bad VLQ in response payload: %v", err)
			}
			fields = append(fields, v)
		}
		out = append(out, fields)
		data = data[msgLen:]
	}
	return out
}

func TestKeypadCommandRegistration(t *testing.T) {
	setupKeypadCommands(t)

	names := []string{"config_keypad", "set_keypad_layout", "keypad_query", "keypad_poll", "keypad_state", "keypad_key"}
	for _, name := range names {
		if _, ok := globalRegistry.GetCommandByName(name); !ok {
			t.Errorf("command %s not registered", name)
		}
	}
}

func TestConfigKeypad(t *testing.T) {
	_, _ = setupKeypadCommands(t)
	configTestKeypad(t, 1)

	kp, exists := keypads[1]
	if !exists {
		t.Fatal("keypad not registered after config_keypad")
	}
	if kp.Keypad.Rows() != 4 || kp.Keypad.Cols() != 3 {
		t.Errorf("keypad is %dx%d, expected 4x3", kp.Keypad.Rows(), kp.Keypad.Cols())
	}
	if kp.Keypad.SettleUs() != DefaultSettleUs {
		t.Errorf("settle time %d, expected %d", kp.Keypad.SettleUs(), DefaultSettleUs)
	}
}

func TestConfigKeypadRejectsBadLayout(t *testing.T) {
	setupKeypadCommands(t)

	data := encodeArgs(func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, 1)
		protocol.EncodeVLQBytes(o, []byte{2, 3, 4, 5})
		protocol.EncodeVLQBytes(o, []byte{6, 7, 8})
		protocol.EncodeVLQBytes(o, []byte("12345")) // wrong size for 4x3
		protocol.EncodeVLQUint(o, DefaultSettleUs)
	})
	if err := handleConfigKeypad(&data); err != ErrLayoutMismatch {
		t.Errorf("config_keypad error = %v, expected ErrLayoutMismatch", err)
	}
	if len(keypads) != 0 {
		t.Error("keypad registered despite invalid layout")
	}
}

func TestSetKeypadLayout(t *testing.T) {
	setupKeypadCommands(t)
	configTestKeypad(t, 1)

	data := encodeArgs(func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, 1)
		protocol.EncodeVLQBytes(o, []byte("abcdefghijkl"))
	})
	if err := handleSetKeypadLayout(&data); err != nil {
		t.Fatalf("set_keypad_layout failed: %v", err)
	}

	if got := keypads[1].Keypad.layout[0][0]; got != 'a' {
		t.Errorf("layout[0][0] = %q after relayout, expected 'a'", got)
	}
}

func TestKeypadQuery(t *testing.T) {
	mock, scratch := setupKeypadCommands(t)
	configTestKeypad(t, 1)

	mock.pressed = holdKey(2, 1)

	data := encodeArgs(func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, 1)
	})
	if err := handleKeypadQuery(&data); err != nil {
		t.Fatalf("keypad_query failed: %v", err)
	}

	responses := decodeResponses(t, scratch.Result())
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}

	stateCmd, _ := globalRegistry.GetCommandByName("keypad_state")
	fields := responses[0]
	if fields[0] != uint32(stateCmd.ID) {
		t.Errorf("response command id %d, expected %d", fields[0], stateCmd.ID)
	}
	if fields[1] != 1 {
		t.Errorf("response oid %d, expected 1", fields[1])
	}
	if byte(fields[2]) != '8' {
		t.Errorf("response key %q, expected '8'", byte(fields[2]))
	}
}

func TestKeypadQueryUnconfiguredOID(t *testing.T) {
	_, scratch := setupKeypadCommands(t)

	data := encodeArgs(func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, 9)
	})
	if err := handleKeypadQuery(&data); err != nil {
		t.Errorf("query of unconfigured oid returned error: %v", err)
	}
	if len(scratch.Result()) != 0 {
		t.Error("unexpected response for unconfigured oid")
	}
}

// stepPoll advances the clock to the poller's next wake time and runs
// due timers.
func stepPoll(ticks uint32) {
	SetTime(GetTime() + ticks)
	ProcessTimers()
}

func TestKeypadPollDebounce(t *testing.T) {
	mock, scratch := setupKeypadCommands(t)
	configTestKeypad(t, 1)

	SetTime(0)

	const rest = 100
	data := encodeArgs(func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, 1)    // oid
		protocol.EncodeVLQUint(o, rest) // first wake
		protocol.EncodeVLQUint(o, rest) // rest_ticks
		protocol.EncodeVLQUint(o, 2)    // sample_count
	})
	if err := handleKeypadPoll(&data); err != nil {
		t.Fatalf("keypad_poll failed: %v", err)
	}

	keyCmd, _ := globalRegistry.GetCommandByName("keypad_key")

	// Two empty passes confirm the idle state without reporting.
	stepPoll(rest)
	stepPoll(rest)
	if got := len(decodeResponses(t, scratch.Result())); got != 0 {
		t.Fatalf("%d responses before any key, expected 0", got)
	}

	// A key must be seen on two consecutive passes before it reports.
	mock.pressed = holdKey(2, 1)
	stepPoll(rest)
	if got := len(decodeResponses(t, scratch.Result())); got != 0 {
		t.Fatalf("%d responses after one sample, expected 0 (debounce)", got)
	}
	stepPoll(rest)

	responses := decodeResponses(t, scratch.Result())
	if len(responses) != 1 {
		t.Fatalf("expected 1 keypad_key response, got %d", len(responses))
	}
	fields := responses[0]
	if fields[0] != uint32(keyCmd.ID) {
		t.Errorf("response command id %d, expected keypad_key id %d", fields[0], keyCmd.ID)
	}
	if byte(fields[2]) != '8' || fields[3] != 1 {
		t.Errorf("expected press of '8', got key %q pressed=%d", byte(fields[2]), fields[3])
	}

	// Holding the key longer must not re-report.
	stepPoll(rest)
	stepPoll(rest)
	if got := len(decodeResponses(t, scratch.Result())); got != 1 {
		t.Fatalf("%d responses while key held, expected still 1", got)
	}

	// Release reports after the same confirmation count.
	mock.pressed = nil
	stepPoll(rest)
	stepPoll(rest)

	responses = decodeResponses(t, scratch.Result())
	if len(responses) != 2 {
		t.Fatalf("expected 2 responses after release, got %d", len(responses))
	}
	fields = responses[1]
	if byte(fields[2]) != '8' || fields[3] != 0 {
		t.Errorf("expected release of '8', got key %q pressed=%d", byte(fields[2]), fields[3])
	}
}

func TestKeypadPollBounceSuppressed(t *testing.T) {
	mock, scratch := setupKeypadCommands(t)
	configTestKeypad(t, 1)

	SetTime(0)

	const rest = 100
	data := encodeArgs(func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, 1)
		protocol.EncodeVLQUint(o, rest)
		protocol.EncodeVLQUint(o, rest)
		protocol.EncodeVLQUint(o, 3) // sample_count
	})
	if err := handleKeypadPoll(&data); err != nil {
		t.Fatalf("keypad_poll failed: %v", err)
	}

	// A contact seen on a single pass then gone is chatter, not a press.
	mock.pressed = holdKey(0, 0)
	stepPoll(rest)
	mock.pressed = nil
	for i := 0; i < 5; i++ {
		stepPoll(rest)
	}

	if got := len(decodeResponses(t, scratch.Result())); got != 0 {
		t.Errorf("%d responses for single-sample chatter, expected 0", got)
	}
}

func TestKeypadPollCancel(t *testing.T) {
	_, scratch := setupKeypadCommands(t)
	configTestKeypad(t, 1)

	SetTime(0)

	data := encodeArgs(func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, 1)
		protocol.EncodeVLQUint(o, 100)
		protocol.EncodeVLQUint(o, 100)
		protocol.EncodeVLQUint(o, 1)
	})
	if err := handleKeypadPoll(&data); err != nil {
		t.Fatalf("keypad_poll failed: %v", err)
	}

	cancel := encodeArgs(func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, 1)
		protocol.EncodeVLQUint(o, 0)
		protocol.EncodeVLQUint(o, 0)
		protocol.EncodeVLQUint(o, 0) // sample_count 0 stops polling
	})
	if err := handleKeypadPoll(&cancel); err != nil {
		t.Fatalf("keypad_poll cancel failed: %v", err)
	}

	if keypads[1].Polling {
		t.Error("poller still marked polling after cancel")
	}

	for i := 0; i < 5; i++ {
		stepPoll(100)
	}
	if len(scratch.Result()) != 0 {
		t.Error("cancelled poller still produced responses")
	}
}

func TestShutdownAllKeypads(t *testing.T) {
	mock, _ := setupKeypadCommands(t)
	configTestKeypad(t, 1)

	// Leave a column driven, as if shutdown hit mid-scan.
	_ = mock.SetPin(6, false)

	ShutdownAllKeypads()

	if !mock.level[6] {
		t.Error("column still driven after shutdown")
	}
	if keypads[1].Polling {
		t.Error("poller still polling after shutdown")
	}
}
