package protocol

import "testing"

func TestSliceInputBuffer(t *testing.T) {
	buf := NewSliceInputBuffer([]byte{1, 2, 3, 4, 5})

	if buf.Available() != 5 {
		t.Errorf("expected 5 bytes available, got %d", buf.Available())
	}

	buf.Pop(2)
	if buf.Available() != 3 {
		t.Errorf("after Pop(2), expected 3 available, got %d", buf.Available())
	}
	if data := buf.Data(); data[0] != 3 {
		t.Errorf("after Pop(2), expected first byte 3, got %d", data[0])
	}

	buf.Pop(10) // over-pop clamps
	if buf.Available() != 0 {
		t.Errorf("after over-pop, expected empty, got %d", buf.Available())
	}
}

func TestScratchOutput(t *testing.T) {
	scratch := NewScratchOutput()

	scratch.Output([]byte{1, 2, 3})
	if scratch.CurPosition() != 3 {
		t.Errorf("expected position 3, got %d", scratch.CurPosition())
	}

	scratch.Output([]byte{4, 5})
	if scratch.CurPosition() != 5 {
		t.Errorf("expected position 5, got %d", scratch.CurPosition())
	}

	scratch.Update(0, 99)
	if result := scratch.Result(); result[0] != 99 {
		t.Errorf("expected first byte 99 after Update, got %d", result[0])
	}

	since := scratch.DataSince(3)
	if len(since) != 2 || since[0] != 4 || since[1] != 5 {
		t.Errorf("DataSince(3) = %v, expected [4 5]", since)
	}

	scratch.Reset()
	if scratch.CurPosition() != 0 {
		t.Errorf("expected position 0 after Reset, got %d", scratch.CurPosition())
	}
}

func TestFifoBuffer(t *testing.T) {
	fifo := NewFifoBuffer(8)

	n := fifo.Write([]byte{1, 2, 3, 4, 5})
	if n != 5 {
		t.Fatalf("expected 5 bytes written, got %d", n)
	}
	if fifo.Available() != 5 {
		t.Errorf("expected 5 available, got %d", fifo.Available())
	}

	out := make([]byte, 3)
	if got := fifo.Read(out); got != 3 {
		t.Fatalf("expected 3 bytes read, got %d", got)
	}
	if out[0] != 1 || out[2] != 3 {
		t.Errorf("unexpected read data: %v", out)
	}

	// Wrap the write pointer around the end of the backing array.
	fifo.Write([]byte{6, 7, 8, 9})
	data := fifo.Data()
	want := []byte{4, 5, 6, 7, 8, 9}
	if len(data) != len(want) {
		t.Fatalf("wrapped Data() length %d, expected %d", len(data), len(want))
	}
	for i := range want {
		if data[i] != want[i] {
			t.Errorf("wrapped Data()[%d] = %d, expected %d", i, data[i], want[i])
		}
	}

	fifo.Pop(6)
	if !fifo.IsEmpty() {
		t.Error("expected buffer empty after popping all data")
	}
}

func TestFifoBufferFull(t *testing.T) {
	fifo := NewFifoBuffer(4) // capacity-1 usable bytes

	n := fifo.Write([]byte{1, 2, 3, 4, 5})
	if n != 3 {
		t.Errorf("expected 3 bytes accepted, got %d", n)
	}
	if fifo.Free() != 0 {
		t.Errorf("expected no free space, got %d", fifo.Free())
	}
}
