// Package gpio drives the BTC08 chain's digital lines: two inputs
// (GN, OON, active-low) and one output (RESET), plus an optional
// power-enable output. It is adapted from the teacher's boardman
// package's direct go-rpio pin control, but takes its pin numbers from
// a constructor argument rather than a package-level viper lookup —
// per the "no process-wide singletons" design note, each chain owns
// its own Lines value.
package gpio

import (
	"time"

	"github.com/stianeikeland/go-rpio"

	"github.com/btc08io/btc08d/config"
)

// Lines is one chain's digital-IO handle: GN/OON inputs, RESET output.
type Lines struct {
	gn, oon, reset, powerEn rpio.Pin
	hasPowerEn              bool
	opened                  bool
}

// Open configures the pins named in m as inputs or outputs. go-rpio's
// Open/Close bracket a process-wide /dev/gpiomem mapping; Lines does
// not call rpio.Open itself so that multiple chains on the same host
// share one mapping, opened once by the caller (mirrors the resource
// model's "GPIO sysfs files opened per call" rule at the line-request
// level rather than the mapping level).
func Open(m config.GPIOMap) *Lines {
	l := &Lines{
		gn:         rpio.Pin(m.GN),
		oon:        rpio.Pin(m.OON),
		reset:      rpio.Pin(m.Reset),
		hasPowerEn: m.HasPowerEn,
	}
	l.gn.Input()
	l.oon.Input()
	l.reset.Output()
	l.reset.High()
	if l.hasPowerEn {
		l.powerEn = rpio.Pin(m.PowerEn)
		l.powerEn.Output()
		l.powerEn.High()
	}
	l.opened = true
	return l
}

// GNAsserted reports whether the golden-nonce line is asserted
// (active-low).
func (l *Lines) GNAsserted() bool {
	return l.gn.Read() == rpio.Low
}

// OONAsserted reports whether the out-of-nonce line is asserted
// (active-low).
func (l *Lines) OONAsserted() bool {
	return l.oon.Read() == rpio.Low
}

// PulseReset drives RESET low for the given duration then releases it
// high, per init step 1 and the flush procedure's "pulse RESET
// low/high".
func (l *Lines) PulseReset(low time.Duration) {
	l.reset.Low()
	time.Sleep(low)
	l.reset.High()
}

// PowerOff / PowerOn drive the optional power-enable line, used by
// boards that gate chain power through a GPIO rather than a physical
// switch.
func (l *Lines) PowerOff() {
	if l.hasPowerEn {
		l.powerEn.Low()
	}
}

func (l *Lines) PowerOn() {
	if l.hasPowerEn {
		l.powerEn.High()
	}
}
