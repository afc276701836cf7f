package core

// DelaySource blocks the caller for short, approximate durations. The
// scanner uses it to let the matrix settle electrically after driving a
// column before the rows are sampled.
type DelaySource interface {
	// DelayUs blocks for approximately us microseconds
	DelayUs(us uint32)
}

// Global singleton used by command handlers; target code registers a
// machine-backed implementation at boot.
var delaySource DelaySource

// SetDelaySource is called by target-specific code to register its delay source.
func SetDelaySource(d DelaySource) {
	delaySource = d
}

// MustDelay returns the configured delay source or panics if missing.
func MustDelay() DelaySource {
	if delaySource == nil {
		panic("delay source not configured")
	}
	return delaySource
}
