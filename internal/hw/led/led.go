package led

import (
	"github.com/cmercat/picapture/internal/debug"
	"github.com/cmercat/picapture/internal/hw/gpio"
)

// StatusLED drives a single indicator LED wired to a GPIO pin. The rig
// holds it high while a batch capture is running so the subject knows not
// to move between frames.
type StatusLED struct {
	gpio gpio.Driver
	pin  int
}

// New configures pin as an output and returns the LED, initially off.
func New(g gpio.Driver, pin int) (*StatusLED, error) {
	if err := g.SetupOutput(pin); err != nil {
		return nil, err
	}
	if err := g.WritePin(pin, gpio.Low); err != nil {
		return nil, err
	}
	return &StatusLED{gpio: g, pin: pin}, nil
}

// On lights the LED.
func (l *StatusLED) On() error {
	debug.Trace("LED: on (pin %d)", l.pin)
	return l.gpio.WritePin(l.pin, gpio.High)
}

// Off extinguishes the LED. Safe to call repeatedly; used on every exit
// path so the LED never stays lit after the process ends.
func (l *StatusLED) Off() error {
	debug.Trace("LED: off (pin %d)", l.pin)
	return l.gpio.WritePin(l.pin, gpio.Low)
}
