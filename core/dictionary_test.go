package core

import (
	"strings"
	"testing"
)

func TestDictionaryGenerate(t *testing.T) {
	reg := NewCommandRegistry()
	dict := NewDictionary(reg)

	dict.AddConstant("CLOCK_FREQ", uint32(12000000))
	dict.AddConstant("MCU", "rp2040")
	dict.AddEnumeration("pin", []string{"gpio0", "gpio1", "gpio2"})

	reg.Register("keypad_query", "oid=%c", func(data *[]byte) error { return nil })
	reg.Register("keypad_state", "oid=%c key=%c", nil)

	output := string(dict.Generate())

	if !strings.Contains(output, `"version":"keymat-0.1.0"`) {
		t.Error("dictionary missing version")
	}
	if !strings.Contains(output, `"CLOCK_FREQ":"12000000"`) {
		t.Error("dictionary missing CLOCK_FREQ constant")
	}
	if !strings.Contains(output, `"MCU":"rp2040"`) {
		t.Error("dictionary missing MCU constant")
	}
	if !strings.Contains(output, `"keypad_query oid=%c":0`) {
		t.Errorf("dictionary missing keypad_query command: %s", output)
	}
	if !strings.Contains(output, `"keypad_state oid=%c key=%c":1`) {
		t.Errorf("dictionary missing keypad_state response: %s", output)
	}
	if !strings.Contains(output, `"gpio1":1`) {
		t.Error("dictionary missing pin enumeration values")
	}
}

func TestDictionaryChunkedRetrieval(t *testing.T) {
	reg := NewCommandRegistry()
	dict := NewDictionary(reg)
	dict.AddConstant("TEST", uint32(123))
	dict.BuildDictionary()

	full := dict.Generate()

	// Reassemble via chunked reads, identify-style.
	var rebuilt []byte
	offset := uint32(0)
	for {
		chunk := dict.GetChunk(offset, 40)
		if len(chunk) == 0 {
			break
		}
		rebuilt = append(rebuilt, chunk...)
		offset += uint32(len(chunk))
	}

	if string(rebuilt) != string(full) {
		t.Errorf("chunked dictionary differs from full dictionary")
	}

	if chunk := dict.GetChunk(uint32(len(full))+10, 8); len(chunk) != 0 {
		t.Errorf("out-of-range chunk returned %d bytes", len(chunk))
	}
}
