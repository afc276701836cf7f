//go:build rp2040

package main

// RPDelay implements core.DelaySource with a busy-wait on the hardware
// microsecond timer. Settle delays are short enough that sleeping would
// cost more in scheduler jitter than the wait itself.
type RPDelay struct{}

func NewRPDelay() *RPDelay {
	return &RPDelay{}
}

// DelayUs busy-waits for approximately us microseconds.
func (d *RPDelay) DelayUs(us uint32) {
	start := GetHardwareTime()
	// Unsigned subtraction handles timer wraparound
	for GetHardwareTime()-start < us {
	}
}
