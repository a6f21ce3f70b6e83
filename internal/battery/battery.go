// Package battery reads an optional PiSugar style fuel gauge over I2C for
// status reporting.
package battery

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"epdtext/internal/config"
)

// Gauge registers.
const (
	regVoltageHigh byte = 0x22
	regVoltageLow  byte = 0x23
	regPercent     byte = 0x2A
)

// Status represents current battery status.
type Status struct {
	// Percent is the battery level in 0–100%.
	Percent int `json:"percent"`
	// VoltageMv is the battery voltage in millivolts.
	VoltageMv int `json:"voltage_mv"`
}

// Reader abstracts how battery information is obtained.
type Reader interface {
	Read(ctx context.Context) (Status, error)
}

// I2CReader talks to the gauge. The bus is opened for each read so a
// missing or busy bus does not pin resources between status requests.
type I2CReader struct {
	busName string
	addr    uint16
	open    func(name string) (i2c.BusCloser, error)
}

// NewI2CReader returns a reader for the gauge at addr on busName ("" for the
// first bus).
func NewI2CReader(busName string, addr uint16) *I2CReader {
	return &I2CReader{
		busName: busName,
		addr:    addr,
		open: func(name string) (i2c.BusCloser, error) {
			if _, err := host.Init(); err != nil {
				return nil, err
			}
			return i2creg.Open(name)
		},
	}
}

// New returns the configured reader, or nil when the gauge is disabled.
func New(cfg config.BatteryConfig) Reader {
	if !cfg.Enabled {
		return nil
	}
	return NewI2CReader(cfg.Bus, cfg.Addr)
}

// Read implements Reader.
func (r *I2CReader) Read(_ context.Context) (Status, error) {
	bus, err := r.open(r.busName)
	if err != nil {
		return Status{}, fmt.Errorf("battery: open i2c %q: %w", r.busName, err)
	}
	defer bus.Close()
	return readStatus(&i2c.Dev{Bus: bus, Addr: r.addr})
}

func readStatus(dev *i2c.Dev) (Status, error) {
	readReg := func(reg byte) (byte, error) {
		buf := []byte{0}
		if err := dev.Tx([]byte{reg}, buf); err != nil {
			return 0, fmt.Errorf("battery: read register %#02x: %w", reg, err)
		}
		return buf[0], nil
	}

	high, err := readReg(regVoltageHigh)
	if err != nil {
		return Status{}, err
	}
	low, err := readReg(regVoltageLow)
	if err != nil {
		return Status{}, err
	}
	pct, err := readReg(regPercent)
	if err != nil {
		return Status{}, err
	}
	if pct > 100 {
		pct = 100
	}

	return Status{
		Percent:   int(pct),
		VoltageMv: int(uint16(high)<<8 | uint16(low)),
	}, nil
}
