//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package session runs measurements against one BAP sensor tag.
//
// A Session owns the reader's air interface for as long as any of its
// methods run. Callers must not start two sessions on the same reader
// or the same tag at once.
package session

import (
	"github.com/edgexfoundry/go-mod-core-contracts/clients/logger"
	"github.com/pkg/errors"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/adxl"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/bap"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/tagmem"
	"periph.io/x/periph/conn/physic"
	"time"
)

// ErrNoReflectedPower is returned by ReflectedPower when the reader can't report it.
var ErrNoReflectedPower = errors.New("reflected power is not available from this reader")

// ReflectedPowerFunc returns the raw I/Q reflected power the reader measures at freq.
// It is diagnostic only, and never drives protocol decisions.
type ReflectedPowerFunc func(freq physic.Frequency) (i, q int32, err error)

type Session struct {
	port tagmem.Port
	tag  tagmem.TagID
	lc   logger.LoggingClient

	power     *bap.PowerController
	accel     *adxl.Accelerometer
	reflected ReflectedPowerFunc

	sleep func(time.Duration)
	now   func() time.Time
}

type Option func(s *Session)

// WithReflectedPower sets the reflected power collaborator.
func WithReflectedPower(f ReflectedPowerFunc) Option {
	return func(s *Session) {
		s.reflected = f
	}
}

// WithClock replaces the wall clock and sleep used for every settle delay.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(s *Session) {
		s.now = now
		s.sleep = sleep
	}
}

func New(port tagmem.Port, tag tagmem.TagID, lc logger.LoggingClient, opts ...Option) *Session {
	s := &Session{
		port:  port,
		tag:   tag,
		lc:    lc,
		power: bap.NewPowerController(port, tag, lc),
		accel: adxl.NewAccelerometer(port, tag, lc),
		sleep: time.Sleep,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.power.Sleep = s.sleep
	s.accel.Sleep = s.sleep
	s.accel.Now = s.now
	return s
}

func (s *Session) Tag() tagmem.TagID {
	return s.tag
}

// Mode returns the power mode this session last configured.
func (s *Session) Mode() bap.PowerMode {
	return s.power.Mode()
}

func (s *Session) VerifyCalibration() (bap.CalibrationResult, error) {
	return bap.VerifyAndRepair(s.port, s.tag, s.lc)
}

func (s *Session) SetMode(mode bap.PowerMode) error {
	return s.power.Configure(mode)
}

func (s *Session) ReadConfig() (bap.ControlSnapshot, error) {
	return s.power.ReadConfig()
}

func (s *Session) reading(raw uint16) Reading {
	return Reading{
		Tag:     s.tag,
		Time:    s.now(),
		Celsius: bap.DecodeTemperature(raw),
		Raw:     raw,
	}
}

// ReadTemperature reads the latest conversion from the sensor data register.
func (s *Session) ReadTemperature() (Reading, error) {
	if err := s.port.Select(s.tag.EPC); err != nil {
		return Reading{}, errors.Wrapf(err, "failed to select tag %s", s.tag.EPC)
	}
	words, err := tagmem.ReadWords(s.port, tagmem.SensorDataMSW, 2)
	if err != nil {
		return Reading{}, errors.Wrap(err, "failed to read sensor data")
	}
	return s.reading(words[0]), nil
}

// PseudoBAPTemperature takes one pseudo-BAP reading:
// the tag is discharged, recharged, sampled, and returned to the passive field.
// The tag is configured for pseudo-BAP first if this session hasn't done so.
func (s *Session) PseudoBAPTemperature(discharge time.Duration) (Reading, error) {
	if s.power.Mode() != bap.PseudoBAP {
		if err := s.power.Configure(bap.PseudoBAP); err != nil {
			return Reading{}, err
		}
	}

	if err := s.power.PseudoBAPDischarge(discharge); err != nil {
		return Reading{}, err
	}

	raw, err := s.power.PseudoBAPChargeAndSample()
	if err != nil {
		if stopErr := s.power.PseudoBAPStop(); stopErr != nil {
			s.lc.Debug("Failed to stop pseudo-BAP after error.", "epc", s.tag.EPC, "error", stopErr.Error())
		}
		return Reading{}, err
	}

	if err := s.power.PseudoBAPStop(); err != nil {
		return Reading{}, err
	}

	r := s.reading(raw)
	s.lc.Info("Pseudo-BAP temperature.", "epc", s.tag.EPC, "celsius", r.Celsius)
	return r, nil
}

// Vibration charges a semi-BAP tag, then collects one accelerometer window
// of at least the given duration.
func (s *Session) Vibration(window time.Duration) (adxl.Window, error) {
	if s.power.Mode() != bap.SemiBAP {
		if err := s.power.Configure(bap.SemiBAP); err != nil {
			return adxl.Window{}, err
		}
	}

	if _, err := s.port.SampleWindow(bap.SemiBAPChargeWindow, nil); err != nil {
		return adxl.Window{}, errors.Wrap(err, "failed to charge tag")
	}
	if _, err := s.port.SampleWindow(0, nil); err != nil {
		return adxl.Window{}, errors.Wrap(err, "failed to refresh tag")
	}

	ok, err := s.accel.TestConnection()
	if err != nil {
		return adxl.Window{}, err
	}
	if !ok {
		return adxl.Window{}, errors.Wrapf(adxl.ErrNotConnected, "tag %s", s.tag.EPC)
	}

	if err := s.accel.Setup(); err != nil {
		return adxl.Window{}, err
	}

	w, err := s.accel.CollectWindow(window)
	if err != nil {
		return w, err
	}

	s.lc.Info("Collected vibration window.", "epc", s.tag.EPC,
		"samples", len(w.Samples), "peakRSSI", w.Signal.PeakRSSI)
	return w, nil
}

// SelfTest runs the accelerometer's self test.
func (s *Session) SelfTest() (adxl.SelfTestResult, error) {
	return s.accel.SelfTest()
}

// ReflectedPower returns the reader's raw I/Q reflected power at freq.
func (s *Session) ReflectedPower(freq physic.Frequency) (i, q int32, err error) {
	if s.reflected == nil {
		return 0, 0, ErrNoReflectedPower
	}
	return s.reflected(freq)
}

// TempLog reads the temperature every interval and hands each reading to sink,
// until shouldContinue returns false or an error occurs.
// It returns the number of readings delivered.
//
// shouldContinue is checked once per iteration, so a reading or sleep
// in progress always completes.
func (s *Session) TempLog(shouldContinue func() bool, interval time.Duration, sink ReadingSink) (int, error) {
	count := 0
	for shouldContinue() {
		r, err := s.ReadTemperature()
		if err != nil {
			return count, err
		}
		if err := sink.PutReading(r); err != nil {
			return count, errors.Wrap(err, "failed to store temperature reading")
		}
		count++

		s.sleep(interval)
	}

	s.lc.Info("Temperature log stopped.", "epc", s.tag.EPC, "readings", count)
	return count, nil
}
