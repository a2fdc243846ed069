//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package adxl

import (
	"encoding/binary"
	"fmt"
	"github.com/edgexfoundry/go-mod-core-contracts/clients/logger"
	"github.com/pkg/errors"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/tagmem"
	"periph.io/x/periph/conn/physic"
	"time"
)

var (
	// ErrCorruptFIFO means the FIFO did not hold the bootstrap entries
	// followed by whole x/y/z triplets. The window must be discarded.
	ErrCorruptFIFO = errors.New("accelerometer FIFO is corrupt")
	// ErrNotConnected means the device ID registers did not match.
	ErrNotConnected = errors.New("accelerometer not detected")
)

const (
	// BootstrapEntries are written to the FIFO when measurement starts,
	// and never hold valid data.
	BootstrapEntries = 3
	// DefaultTick is the inventory time of each keep-alive round while measuring.
	DefaultTick = 20 * time.Millisecond
	// SelfTestSettle covers one output period at the configured data rate.
	SelfTestSettle = 120 * time.Millisecond
)

// ODR is the output data rate set by Setup.
const ODR = 12500 * physic.MilliHertz

// DefaultWindow is long enough for the FIFO to hold a few samples.
var DefaultWindow = 3 * ODR.Period()

// Axis identifies the source of a FIFO entry.
type Axis uint8

const (
	AxisX = Axis(iota)
	AxisY
	AxisZ
	AxisTemp
)

// Entry is a raw FIFO entry: the axis in bits 15:14,
// and a 14-bit two's complement sample below it.
type Entry uint16

func (e Entry) Axis() Axis {
	return Axis(e >> 14)
}

func (e Entry) Value() int16 {
	return int16(e<<2) >> 2
}

// Sample is one x/y/z reading from the FIFO, in raw counts.
// Time is inferred from the output data rate.
type Sample struct {
	Time    time.Time
	X, Y, Z int16
}

// Window is the result of a measurement window.
type Window struct {
	Start   time.Time
	Samples []Sample
	// Signal summarizes the inventory rounds that kept the tag powered.
	Signal tagmem.LinkStats
}

// SelfTestResult holds the axis data before and after
// the self-test force was applied.
type SelfTestResult struct {
	Before [3]int16
	After  [3]int16
}

func (r SelfTestResult) Delta() [3]int16 {
	return [3]int16{
		r.After[0] - r.Before[0],
		r.After[1] - r.Before[1],
		r.After[2] - r.Before[2],
	}
}

// Accelerometer drives the ADXL363 on a sensor tag.
// It is not safe for concurrent use.
type Accelerometer struct {
	port tagmem.Port
	tag  tagmem.TagID
	lc   logger.LoggingClient
	spi  bridge

	Tick  time.Duration
	Sleep func(time.Duration)
	Now   func() time.Time
}

func NewAccelerometer(port tagmem.Port, tag tagmem.TagID, lc logger.LoggingClient) *Accelerometer {
	return &Accelerometer{
		port:  port,
		tag:   tag,
		lc:    lc,
		spi:   bridge{port: port},
		Tick:  DefaultTick,
		Sleep: time.Sleep,
		Now:   time.Now,
	}
}

func (a *Accelerometer) selectTag() error {
	if err := a.port.Select(a.tag.EPC); err != nil {
		return errors.Wrapf(err, "failed to select tag %s", a.tag.EPC)
	}
	return nil
}

// ReadRegister reads n consecutive registers starting at reg.
func (a *Accelerometer) ReadRegister(reg Register, n int) ([]byte, error) {
	if err := a.selectTag(); err != nil {
		return nil, err
	}
	data, err := a.spi.read(reg, n)
	return data, errors.WithMessagef(err, "failed to read register 0x%02X", reg)
}

// WriteRegister writes data to consecutive registers starting at reg.
func (a *Accelerometer) WriteRegister(reg Register, data ...byte) error {
	if err := a.selectTag(); err != nil {
		return err
	}
	return errors.WithMessagef(a.spi.write(reg, data), "failed to write register 0x%02X", reg)
}

// TestConnection reports whether the device ID registers hold DeviceID.
func (a *Accelerometer) TestConnection() (bool, error) {
	id, err := a.ReadRegister(RegDevIDAD, len(DeviceID))
	if err != nil {
		return false, err
	}
	ok := id[0] == DeviceID[0] && id[1] == DeviceID[1] && id[2] == DeviceID[2]
	if !ok {
		a.lc.Warn("Unexpected accelerometer ID.", "epc", a.tag.EPC, "id", fmt.Sprintf("% X", id))
	}
	return ok, nil
}

// Setup configures stream mode FIFO, ±2g range and the fixed output data rate,
// with activity detection and interrupts disabled.
func (a *Accelerometer) Setup() error {
	if err := a.selectTag(); err != nil {
		return err
	}

	regs := []struct {
		reg Register
		val byte
	}{
		{RegActInactCtl, 0x00},
		{RegFIFOControl, fifoModeStream},
		{RegFIFOSamples, fifoSamplesMax},
		{RegIntMap1, 0x00},
		{RegIntMap2, 0x00},
		{RegFilterCtl, filterRange2G | filterHalfBW | filterODR12Hz5},
	}
	for _, r := range regs {
		if err := a.spi.write(r.reg, []byte{r.val}); err != nil {
			return errors.WithMessagef(err, "failed to configure register 0x%02X", r.reg)
		}
	}
	return nil
}

// TurnOn starts measurement, which also resets the FIFO.
func (a *Accelerometer) TurnOn() error {
	return a.WriteRegister(RegPowerCtl, powerMeasure)
}

// TurnOff puts the accelerometer in standby.
func (a *Accelerometer) TurnOff() error {
	return a.WriteRegister(RegPowerCtl, powerStandby)
}

func (a *Accelerometer) numFIFOEntries() (uint16, error) {
	data, err := a.spi.read(RegFIFOEntriesL, 2)
	if err != nil {
		return 0, errors.WithMessage(err, "failed to read FIFO entry count")
	}
	return uint16(data[1]&fifoEntriesHMask)<<8 | uint16(data[0]), nil
}

// NumFIFOEntries returns the number of entries waiting in the FIFO.
func (a *Accelerometer) NumFIFOEntries() (uint16, error) {
	if err := a.selectTag(); err != nil {
		return 0, err
	}
	return a.numFIFOEntries()
}

func (a *Accelerometer) readFIFO(n int) ([]Entry, error) {
	if n == 0 {
		return nil, nil
	}
	data, err := a.spi.readFIFO(n)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to read FIFO")
	}
	entries := make([]Entry, n)
	for i := range entries {
		entries[i] = Entry(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return entries, nil
}

// ReadFIFO pops n raw entries from the FIFO.
func (a *Accelerometer) ReadFIFO(n int) ([]Entry, error) {
	if err := a.selectTag(); err != nil {
		return nil, err
	}
	return a.readFIFO(n)
}

func (a *Accelerometer) fifoEntries() ([]int16, error) {
	n, err := a.numFIFOEntries()
	if err != nil {
		return nil, err
	}
	entries, err := a.readFIFO(int(n))
	if err != nil {
		return nil, err
	}
	values := make([]int16, len(entries))
	for i, e := range entries {
		values[i] = e.Value()
	}
	return values, nil
}

// FIFOEntries drains the FIFO and returns the decoded sample values.
func (a *Accelerometer) FIFOEntries() ([]int16, error) {
	if err := a.selectTag(); err != nil {
		return nil, err
	}
	return a.fifoEntries()
}

// CollectWindow measures for at least minDuration, keeping the tag powered
// with inventory rounds, then drains the FIFO into timestamped samples.
//
// Setup must have been called. If the FIFO does not hold the bootstrap entries
// followed by whole triplets, the error wraps ErrCorruptFIFO.
func (a *Accelerometer) CollectWindow(minDuration time.Duration) (Window, error) {
	var w Window

	if err := a.TurnOn(); err != nil {
		return w, errors.WithMessage(err, "failed to start measurement")
	}
	w.Start = a.Now()

	if err := a.sampleUntil(w.Start, minDuration, &w.Signal); err != nil {
		if offErr := a.TurnOff(); offErr != nil {
			a.lc.Debug("Failed to stop measurement after error.", "epc", a.tag.EPC, "error", offErr.Error())
		}
		return w, err
	}

	if err := a.TurnOff(); err != nil {
		return w, errors.WithMessage(err, "failed to stop measurement")
	}

	count, err := a.numFIFOEntries()
	if err != nil {
		return w, err
	}
	if count < BootstrapEntries {
		return w, errors.Wrapf(ErrCorruptFIFO, "only %d entries in FIFO", count)
	}
	if _, err := a.readFIFO(BootstrapEntries); err != nil {
		return w, errors.WithMessage(err, "failed to discard bootstrap entries")
	}

	values, err := a.fifoEntries()
	if err != nil {
		return w, err
	}
	if len(values)%3 != 0 {
		return w, errors.Wrapf(ErrCorruptFIFO, "%d entries after bootstrap", len(values))
	}

	period := ODR.Period()
	w.Samples = make([]Sample, len(values)/3)
	for k := range w.Samples {
		w.Samples[k] = Sample{
			Time: w.Start.Add(time.Duration(k+1) * period),
			X:    values[k*3],
			Y:    values[k*3+1],
			Z:    values[k*3+2],
		}
	}

	a.lc.Debug("Collected accelerometer window.", "epc", a.tag.EPC,
		"samples", len(w.Samples), "peakRSSI", w.Signal.PeakRSSI)
	return w, nil
}

// sampleUntil runs keep-alive rounds until d has passed since start,
// then one more round to refresh the tag before the FIFO is read.
func (a *Accelerometer) sampleUntil(start time.Time, d time.Duration, stats *tagmem.LinkStats) error {
	for a.Now().Sub(start) < d {
		s, err := a.port.SampleWindow(a.Tick, nil)
		if err != nil {
			return errors.Wrap(err, "failed to keep tag powered")
		}
		*stats = stats.Merge(s)
	}

	s, err := a.port.SampleWindow(0, nil)
	if err != nil {
		return errors.Wrap(err, "failed to refresh tag")
	}
	*stats = stats.Merge(s)
	return nil
}

func (a *Accelerometer) readAxes() ([3]int16, error) {
	var axes [3]int16
	data, err := a.spi.read(RegXDataL, 6)
	if err != nil {
		return axes, errors.WithMessage(err, "failed to read axis data")
	}
	for i := range axes {
		axes[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return axes, nil
}

// SelfTest reads the axes with and without the self-test force applied.
// A working accelerometer shows a clear shift on every axis.
func (a *Accelerometer) SelfTest() (SelfTestResult, error) {
	var res SelfTestResult
	if err := a.selectTag(); err != nil {
		return res, err
	}

	var err error
	if res.Before, err = a.readAxes(); err != nil {
		return res, err
	}
	if err := a.spi.write(RegSelfTest, []byte{selfTestEnable}); err != nil {
		return res, errors.WithMessage(err, "failed to enable self test")
	}
	a.Sleep(SelfTestSettle)

	if res.After, err = a.readAxes(); err != nil {
		return res, err
	}
	if err := a.spi.write(RegSelfTest, []byte{selfTestDisable}); err != nil {
		return res, errors.WithMessage(err, "failed to disable self test")
	}
	return res, nil
}
