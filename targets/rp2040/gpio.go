//go:build rp2040

package main

import (
	"machine"

	"keymat/core"
)

// pinMode records how a tracked pin is currently configured.
type pinMode uint8

const (
	modeUnconfigured pinMode = iota
	modeInputPullUp
	modeOpenDrainReleased
	modeOpenDrainLow
)

// RPGPIODriver implements the GPIODriver interface for RP2040
type RPGPIODriver struct {
	// Track configured pins to prevent conflicts
	pins map[core.GPIOPin]pinMode
}

// NewRPGPIODriver creates a new RP2040 GPIO driver
func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{
		pins: make(map[core.GPIOPin]pinMode),
	}
}

func (d *RPGPIODriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	if d.pins[pin] == modeInputPullUp {
		return nil
	}

	machinePin := d.pinNumberToMachinePin(pin)
	machinePin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	d.pins[pin] = modeInputPullUp
	return nil
}

// ConfigureOpenDrain configures a pin as an open-drain output in the
// released state. The RP2040 has no hardware open-drain mode, so it is
// emulated: released = high-impedance input, driven = output low.
func (d *RPGPIODriver) ConfigureOpenDrain(pin core.GPIOPin) error {
	if mode := d.pins[pin]; mode == modeOpenDrainReleased || mode == modeOpenDrainLow {
		return d.SetPin(pin, true)
	}

	machinePin := d.pinNumberToMachinePin(pin)
	machinePin.Configure(machine.PinConfig{Mode: machine.PinInput})

	d.pins[pin] = modeOpenDrainReleased
	return nil
}

// SetPin drives an open-drain pin: true releases the line, false drives
// it low.
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	machinePin := d.pinNumberToMachinePin(pin)

	if value {
		if d.pins[pin] != modeOpenDrainReleased {
			machinePin.Configure(machine.PinConfig{Mode: machine.PinInput})
			d.pins[pin] = modeOpenDrainReleased
		}
		return nil
	}

	if d.pins[pin] != modeOpenDrainLow {
		machinePin.Configure(machine.PinConfig{Mode: machine.PinOutput})
		d.pins[pin] = modeOpenDrainLow
	}
	machinePin.Set(false)
	return nil
}

// GetPin reads the current pin state
func (d *RPGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	if _, exists := d.pins[pin]; !exists {
		// Pin not configured
		return false, nil
	}
	return d.pinNumberToMachinePin(pin).Get(), nil
}

func (d *RPGPIODriver) ReadPin(pin core.GPIOPin) bool {
	// ReadPin is a convenience wrapper around GetPin that returns just the bool value
	value, _ := d.GetPin(pin)
	return value
}

// pinNumberToMachinePin converts a pin to a machine.Pin
// This mapping is RP2040-specific
func (d *RPGPIODriver) pinNumberToMachinePin(pin core.GPIOPin) machine.Pin {
	// For RP2040, pins map directly to GPIO numbers
	return machine.Pin(pin)
}
