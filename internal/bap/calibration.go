//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package bap

import (
	"github.com/edgexfoundry/go-mod-core-contracts/clients/logger"
	"github.com/pkg/errors"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/tagmem"
)

// ErrCalibrationMismatch indicates the active calibration word drifted from the factory word.
var ErrCalibrationMismatch = errors.New("active calibration does not match factory calibration")

const (
	calibrationKeyMask  = 0xFFE0
	calibrationTrimMask = 0x001F
)

// CalibrationPair holds the factory and active calibration words of one tag.
type CalibrationPair struct {
	Factory uint16
	Active  uint16
}

// Check returns an error wrapping ErrCalibrationMismatch
// if the high 11 bits of the words differ.
func (c CalibrationPair) Check() error {
	if c.Factory&calibrationKeyMask != c.Active&calibrationKeyMask {
		return errors.Wrapf(ErrCalibrationMismatch,
			"factory 0x%04X, active 0x%04X", c.Factory, c.Active)
	}
	return nil
}

// Trim returns the fine-trim offset encoded in the active word, in degrees Celsius.
func (c CalibrationPair) Trim() float32 {
	return DecodeTemperature(uint16(tagmem.SignExtend5(c.Active & calibrationTrimMask)))
}

// CalibrationResult is the outcome of VerifyAndRepair.
// Trim is only meaningful when Repaired is false.
type CalibrationResult struct {
	Pair     CalibrationPair
	Repaired bool
	Trim     float32
}

// VerifyAndRepair compares the tag's active calibration word with its factory word.
// If they are out of sync, the factory word is copied over the active word
// and the result is marked Repaired; otherwise the result carries the active trim.
//
// A mismatch is not an error: only link failures are returned.
func VerifyAndRepair(port tagmem.Port, tag tagmem.TagID, lc logger.LoggingClient) (CalibrationResult, error) {
	var res CalibrationResult

	if err := port.Select(tag.EPC); err != nil {
		return res, errors.Wrapf(err, "failed to select tag %s", tag.EPC)
	}

	factory, err := tagmem.ReadWord(port, tagmem.CalibrationFactory)
	if err != nil {
		return res, errors.Wrap(err, "failed to read factory calibration")
	}

	active, err := tagmem.ReadWord(port, tagmem.CalibrationActive)
	if err != nil {
		return res, errors.Wrap(err, "failed to read active calibration")
	}

	res.Pair = CalibrationPair{Factory: factory, Active: active}
	if mismatch := res.Pair.Check(); mismatch != nil {
		lc.Warn("Repairing tag calibration.", "epc", tag.EPC, "error", mismatch.Error())
		if err := tagmem.WriteWord(port, tagmem.CalibrationActive, tagmem.EncodeWord(factory)); err != nil {
			return res, errors.Wrap(err, "failed to restore active calibration")
		}
		res.Repaired = true
		return res, nil
	}

	res.Trim = res.Pair.Trim()
	lc.Debug("Calibration verified.", "epc", tag.EPC, "trim", res.Trim)
	return res, nil
}
