package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigUnmarshal(t *testing.T) {
	data := []byte(`
device: /dev/ttyUSB1
baud: 115200
verbose: true
keypad:
  oid: 2
  rows: [2, 3, 4, 5]
  cols: [6, 7, 8]
  layout: "123456789*0#"
  settle_us: 500
  rest_ticks: 20000
  sample_count: 3
`)

	cfg := defaultConfig()
	require.NoError(t, yaml.Unmarshal(data, cfg))

	assert.Equal(t, "/dev/ttyUSB1", cfg.Device)
	assert.Equal(t, 115200, cfg.Baud)
	assert.True(t, cfg.Verbose)

	assert.Equal(t, uint8(2), cfg.Keypad.OID)
	assert.Equal(t, []int{2, 3, 4, 5}, cfg.Keypad.Rows)
	assert.Equal(t, []int{6, 7, 8}, cfg.Keypad.Cols)
	assert.Equal(t, "123456789*0#", cfg.Keypad.Layout)
	assert.Equal(t, uint32(500), cfg.Keypad.SettleUs)
	assert.Equal(t, uint32(20000), cfg.Keypad.RestTicks)
	assert.Equal(t, uint8(3), cfg.Keypad.SampleCount)
}

func TestConfigDefaultsSurvivePartialFile(t *testing.T) {
	data := []byte(`
keypad:
  layout: "123456789*0#"
  rows: [10, 11, 12, 13]
  cols: [14, 15, 16]
`)

	cfg := defaultConfig()
	require.NoError(t, yaml.Unmarshal(data, cfg))

	// Unset fields keep their defaults
	assert.Equal(t, "/dev/ttyACM0", cfg.Device)
	assert.Equal(t, 250000, cfg.Baud)
	assert.Equal(t, uint32(1000), cfg.Keypad.SettleUs)
	assert.Equal(t, uint8(2), cfg.Keypad.SampleCount)

	assert.Equal(t, "123456789*0#", cfg.Keypad.Layout)
}
