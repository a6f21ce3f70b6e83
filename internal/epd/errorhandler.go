package epd

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// errorHandler runs a sequence of bus operations and keeps the first error.
// Once an error is recorded every later operation is skipped.
type errorHandler struct {
	d   *Dev
	err error
}

func (eh *errorHandler) rstOut(l gpio.Level) {
	if eh.err != nil {
		return
	}
	eh.err = eh.d.rst.Out(l)
}

func (eh *errorHandler) dcOut(l gpio.Level) {
	if eh.err != nil {
		return
	}
	eh.err = eh.d.dc.Out(l)
}

// csOut is a no-op when chip select is driven by the SPI controller.
func (eh *errorHandler) csOut(l gpio.Level) {
	if eh.err != nil || eh.d.cs == nil {
		return
	}
	eh.err = eh.d.cs.Out(l)
}

// cTx writes w in slices no larger than the bus transaction limit.
func (eh *errorHandler) cTx(w []byte) {
	for len(w) > 0 && eh.err == nil {
		n := len(w)
		if n > eh.d.maxTxSize {
			n = eh.d.maxTxSize
		}
		eh.err = eh.d.c.Tx(w[:n], nil)
		w = w[n:]
	}
}

func (eh *errorHandler) sleep(d time.Duration) {
	if eh.err != nil {
		return
	}
	time.Sleep(d)
}

func (eh *errorHandler) reset() {
	eh.rstOut(gpio.High)
	eh.sleep(eh.d.opts.ResetDelay)
	eh.rstOut(gpio.Low)
	eh.sleep(eh.d.opts.ResetPulse)
	eh.rstOut(gpio.High)
	eh.sleep(eh.d.opts.ResetDelay)
}

// waitUntilIdle polls the busy line, high meaning busy, until it drops or
// the busy timeout expires.
func (eh *errorHandler) waitUntilIdle() {
	if eh.err != nil {
		return
	}
	deadline := time.Now().Add(eh.d.opts.BusyTimeout)
	for eh.d.busy.Read() == gpio.High {
		if time.Now().After(deadline) {
			eh.err = fmt.Errorf("%w after %v", ErrBusyTimeout, eh.d.opts.BusyTimeout)
			return
		}
		time.Sleep(eh.d.opts.BusyPoll)
	}
}

func (eh *errorHandler) sendCommand(cmd byte) {
	if eh.err != nil {
		return
	}
	eh.dcOut(gpio.Low)
	eh.csOut(gpio.Low)
	eh.cTx([]byte{cmd})
	eh.csOut(gpio.High)
}

func (eh *errorHandler) sendData(data []byte) {
	if eh.err != nil {
		return
	}
	eh.dcOut(gpio.High)
	eh.csOut(gpio.Low)
	eh.cTx(data)
	eh.csOut(gpio.High)
}
