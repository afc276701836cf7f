package mcu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keymat/protocol"
)

const testDictJSON = `{
	"version":"keymat-0.1.0",
	"build_versions":"go-tinygo",
	"config":{"CLOCK_FREQ":"1000000","MCU":"rp2040"},
	"commands":{
		"identify offset=%u count=%c":1,
		"keypad_query oid=%c":9,
		"config_keypad oid=%c rows=%*s cols=%*s layout=%*s settle_us=%u":10
	},
	"responses":{
		"identify_response offset=%u data=%*s":0,
		"keypad_state oid=%c key=%c":13,
		"keypad_key oid=%c key=%c pressed=%c clock=%u":14
	},
	"enumerations":{"pin":{"gpio0":0,"gpio1":1}}
}`

func TestParseDictionary(t *testing.T) {
	m := NewMCU()
	m.dictionaryData = []byte(testDictJSON)

	require.NoError(t, m.parseDictionary())

	dict := m.GetDictionary()
	require.NotNil(t, dict)
	assert.Equal(t, "keymat-0.1.0", dict.Version)
	assert.Equal(t, "rp2040", dict.Config["MCU"])

	// Response ids must be cached for the async event decoder
	assert.Equal(t, 13, m.keypadStateID)
	assert.Equal(t, 14, m.keypadKeyID)
}

func TestDictionaryLookupByName(t *testing.T) {
	m := NewMCU()
	m.dictionaryData = []byte(testDictJSON)
	require.NoError(t, m.parseDictionary())
	dict := m.GetDictionary()

	id, ok := dict.CommandID("keypad_query")
	require.True(t, ok)
	assert.Equal(t, 9, id)

	id, ok = dict.ResponseID("keypad_key")
	require.True(t, ok)
	assert.Equal(t, 14, id)

	// Name matching must not treat prefixes as full names
	_, ok = dict.CommandID("keypad")
	assert.False(t, ok)

	_, ok = dict.CommandID("not_a_command")
	assert.False(t, ok)
}

func encodeEventPayload(t *testing.T, oid, key, pressed, clock uint32) []byte {
	t.Helper()
	scratch := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(scratch, oid)
	protocol.EncodeVLQUint(scratch, key)
	protocol.EncodeVLQUint(scratch, pressed)
	protocol.EncodeVLQUint(scratch, clock)

	payload := make([]byte, len(scratch.Result()))
	copy(payload, scratch.Result())
	return payload
}

func TestHandleResponseKeyEvent(t *testing.T) {
	m := NewMCU()
	m.dictionaryData = []byte(testDictJSON)
	require.NoError(t, m.parseDictionary())

	payload := encodeEventPayload(t, 1, uint32('8'), 1, 5000)
	require.NoError(t, m.handleResponse(14, &payload))

	select {
	case evt := <-m.Events():
		assert.Equal(t, uint8(1), evt.OID)
		assert.Equal(t, byte('8'), evt.Key)
		assert.True(t, evt.Pressed)
		assert.Equal(t, uint32(5000), evt.Clock)
	default:
		t.Fatal("expected a key event")
	}
}

func TestHandleResponseIgnoresOtherResponses(t *testing.T) {
	m := NewMCU()
	m.dictionaryData = []byte(testDictJSON)
	require.NoError(t, m.parseDictionary())

	// keypad_state id, not keypad_key
	payload := encodeEventPayload(t, 1, uint32('8'), 1, 0)
	require.NoError(t, m.handleResponse(13, &payload))

	select {
	case <-m.Events():
		t.Fatal("keypad_state must not produce a key event")
	default:
	}
}

func TestHandleResponseDropsOldestWhenFull(t *testing.T) {
	m := NewMCU()
	m.dictionaryData = []byte(testDictJSON)
	require.NoError(t, m.parseDictionary())

	// Overfill the event channel; the newest events must survive
	for i := 0; i < cap(m.events)+4; i++ {
		payload := encodeEventPayload(t, 1, uint32('0'+i%10), 1, uint32(i))
		require.NoError(t, m.handleResponse(14, &payload))
	}

	var last KeyEvent
	count := 0
	for {
		select {
		case evt := <-m.Events():
			last = evt
			count++
			continue
		default:
		}
		break
	}

	assert.Equal(t, cap(m.events), count)
	assert.Equal(t, uint32(cap(m.events)+3), last.Clock)
}

func TestReadCharSkipsReleases(t *testing.T) {
	m := NewMCU()
	m.dictionaryData = []byte(testDictJSON)
	require.NoError(t, m.parseDictionary())

	release := encodeEventPayload(t, 1, uint32('5'), 0, 100)
	require.NoError(t, m.handleResponse(14, &release))
	press := encodeEventPayload(t, 1, uint32('7'), 1, 200)
	require.NoError(t, m.handleResponse(14, &press))

	key, err := m.ReadChar(1, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, byte('7'), key)
}

func TestReadCharTimeout(t *testing.T) {
	m := NewMCU()

	_, err := m.ReadChar(1, 10*time.Millisecond)
	assert.Error(t, err)
}

func TestConfigKeypadRejectsMismatchedLayout(t *testing.T) {
	m := NewMCU()

	err := m.ConfigKeypad(0, []byte{2, 3, 4, 5}, []byte{6, 7, 8}, "123", 1000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestStartPollingRejectsZeroSamples(t *testing.T) {
	m := NewMCU()

	err := m.StartPolling(0, 10000, 0)
	require.Error(t, err)
}
