package epd

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"epdtext/internal/config"
)

// Open initializes the host, opens the configured SPI port and pins and
// returns the panel handle with its port. The caller closes the port.
func Open(cfg config.PanelConfig) (*Dev, spi.PortCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("epd: periph host init: %w", err)
	}

	dc, err := outPin(cfg.DC, gpio.Low)
	if err != nil {
		return nil, nil, err
	}
	rst, err := outPin(cfg.RST, gpio.High)
	if err != nil {
		return nil, nil, err
	}
	var cs gpio.PinOut
	if cfg.CS != "" {
		if cs, err = outPin(cfg.CS, gpio.High); err != nil {
			return nil, nil, err
		}
	}
	busy := gpioreg.ByName(cfg.Busy)
	if busy == nil {
		return nil, nil, fmt.Errorf("epd: gpio %q not found", cfg.Busy)
	}
	if err := busy.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return nil, nil, fmt.Errorf("epd: gpio %s in: %w", cfg.Busy, err)
	}

	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, nil, fmt.Errorf("epd: open spi port %q: %w", cfg.SPIPort, err)
	}

	opts := EPD2in9v2
	if cfg.BusyTimeoutMs > 0 {
		opts.BusyTimeout = time.Duration(cfg.BusyTimeoutMs) * time.Millisecond
	}
	hz := physic.Frequency(cfg.SPIHz) * physic.Hertz

	d, err := New(port, hz, dc, cs, rst, busy, &opts)
	if err != nil {
		_ = port.Close()
		return nil, nil, err
	}
	return d, port, nil
}

func outPin(name string, l gpio.Level) (gpio.PinOut, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("epd: gpio %q not found", name)
	}
	if err := p.Out(l); err != nil {
		return nil, fmt.Errorf("epd: gpio %s out: %w", name, err)
	}
	return p, nil
}
