//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package bap

import (
	"github.com/edgexfoundry/go-mod-core-contracts/clients/logger"
	"github.com/pkg/errors"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/tagmem"
	"strings"
	"time"
)

// PowerMode is the power configuration last written to a tag.
type PowerMode int

const (
	// ModeUnknown means no full configuration sequence has completed,
	// so the tag may be in whatever state it last persisted.
	ModeUnknown = PowerMode(iota)
	Passive
	SemiBAP
	BAP
	PseudoBAP
)

func (m PowerMode) String() string {
	switch m {
	case Passive:
		return "passive"
	case SemiBAP:
		return "semibap"
	case BAP:
		return "bap"
	case PseudoBAP:
		return "pseudobap"
	}
	return "unknown"
}

// ParsePowerMode accepts the names returned by PowerMode.String, ignoring case.
func ParsePowerMode(s string) (PowerMode, error) {
	switch strings.ToLower(s) {
	case "passive":
		return Passive, nil
	case "semibap", "semi-bap":
		return SemiBAP, nil
	case "bap":
		return BAP, nil
	case "pseudobap", "pseudo-bap":
		return PseudoBAP, nil
	}
	return ModeUnknown, errors.Errorf("unknown power mode %q", s)
}

type controlWrite struct {
	cw   tagmem.ControlWord
	word tagmem.Word
}

var (
	zeroWord     = tagmem.Word{0x00, 0x00}
	bapEnabled   = tagmem.Word{0x00, 0x01}
	bapDisabled  = zeroWord
	bm2BAPEnable = tagmem.Word{0x00, 0x01}
)

// configSequence returns the writes for a mode, in the order they must happen.
// The BAP mode word is always the last word of the main sequence.
func configSequence(mode PowerMode) ([]controlWrite, error) {
	var io, bm1 tagmem.Word
	bap := bapDisabled

	switch mode {
	case Passive:
		io = tagmem.Word{0xE6, 0x00}
		bm1 = zeroWord
	case BAP:
		io = tagmem.Word{0xE0, 0x00}
		bm1 = tagmem.Word{0x20, 0x01}
		bap = bapEnabled
	case SemiBAP, PseudoBAP:
		io = tagmem.Word{0x06, 0x00}
		bm1 = zeroWord
	default:
		return nil, errors.Errorf("cannot configure power mode %s", mode)
	}

	seq := []controlWrite{
		{tagmem.TempSensorControl1, zeroWord},
		{tagmem.TempSensorControl2, zeroWord},
		{tagmem.TempSensorControl3, zeroWord},
		{tagmem.IOControl, io},
		{tagmem.BatteryManagement1, bm1},
		{tagmem.BatteryManagement2, bm2BAPEnable},
		{tagmem.TotalWord, zeroWord},
		{tagmem.BAPMode, bap},
	}

	// Without this, a passive tag can latch battery assist.
	if mode == Passive {
		seq = append(seq, controlWrite{tagmem.BatteryManagement2, zeroWord})
	}
	return seq, nil
}

// PowerController sequences the control words of one tag.
//
// It is not safe for concurrent use, and no other code
// should write the power control words while it is in use.
type PowerController struct {
	port tagmem.Port
	tag  tagmem.TagID
	lc   logger.LoggingClient
	mode PowerMode

	// Sleep waits out the settle delays; tests replace it.
	Sleep func(time.Duration)
}

func NewPowerController(port tagmem.Port, tag tagmem.TagID, lc logger.LoggingClient) *PowerController {
	return &PowerController{
		port:  port,
		tag:   tag,
		lc:    lc,
		mode:  ModeUnknown,
		Sleep: time.Sleep,
	}
}

// Mode returns the mode of the last successful Configure.
func (pc *PowerController) Mode() PowerMode {
	return pc.mode
}

// Configure writes the full control word sequence for mode.
// If any write fails, the mode reverts to ModeUnknown.
func (pc *PowerController) Configure(mode PowerMode) error {
	seq, err := configSequence(mode)
	if err != nil {
		return err
	}

	if err := pc.port.Select(pc.tag.EPC); err != nil {
		return errors.Wrapf(err, "failed to select tag %s", pc.tag.EPC)
	}

	pc.mode = ModeUnknown
	for _, w := range seq {
		if err := tagmem.WriteWord(pc.port, w.cw, w.word); err != nil {
			return errors.Wrapf(err, "failed to write %s while configuring %s mode", w.cw, mode)
		}
	}

	pc.mode = mode
	pc.lc.Info("Configured tag power mode.", "epc", pc.tag.EPC, "mode", mode.String())
	return nil
}

func (pc *PowerController) checkPseudoBAP(op string) {
	if pc.mode != PseudoBAP {
		pc.lc.Warn("Tag is not configured for pseudo-BAP.",
			"epc", pc.tag.EPC, "operation", op, "mode", pc.mode.String())
	}
}

// PseudoBAPDischarge arms BAP, refreshes the tag once,
// then waits for the on-tag capacitor to drain.
func (pc *PowerController) PseudoBAPDischarge(discharge time.Duration) error {
	pc.checkPseudoBAP("discharge")

	if err := pc.port.Select(pc.tag.EPC); err != nil {
		return errors.Wrapf(err, "failed to select tag %s", pc.tag.EPC)
	}
	if err := tagmem.WriteWord(pc.port, tagmem.BAPMode, bapEnabled); err != nil {
		return errors.Wrap(err, "failed to enable BAP")
	}
	pc.Sleep(PowerCycleSettle)

	if _, err := pc.port.SampleWindow(0, nil); err != nil {
		return errors.Wrap(err, "failed to refresh tag after enabling BAP")
	}

	pc.lc.Debug("Discharging tag.", "epc", pc.tag.EPC, "duration", discharge.String())
	pc.Sleep(discharge)
	return nil
}

// PseudoBAPChargeAndSample recharges a discharged tag, triggers a temperature
// conversion, and returns the raw sensor data MSW.
//
// The tag is usually unreachable right after discharge,
// so the write that disables BAP is retried until it succeeds.
// That loop cannot be cancelled.
func (pc *PowerController) PseudoBAPChargeAndSample() (uint16, error) {
	pc.checkPseudoBAP("charge")

	if err := pc.port.Select(pc.tag.EPC); err != nil {
		return 0, errors.Wrapf(err, "failed to select tag %s", pc.tag.EPC)
	}

	for attempts := 1; ; attempts++ {
		err := tagmem.WriteWord(pc.port, tagmem.BAPMode, bapDisabled)
		if err == nil {
			if attempts > 1 {
				pc.lc.Debug("Disabled BAP after retries.", "epc", pc.tag.EPC, "attempts", attempts)
			}
			break
		}
		pc.lc.Debug("Tag not yet reachable.", "epc", pc.tag.EPC, "attempt", attempts, "error", err.Error())
	}

	// The tag is still recovering, so a failure here is normal.
	if _, err := pc.port.SampleWindow(RechargeWindow, nil); err != nil {
		pc.lc.Debug("Recharge window incomplete.", "epc", pc.tag.EPC, "error", err.Error())
	}
	pc.Sleep(PowerCycleSettle)

	if _, err := pc.port.SampleWindow(0, nil); err != nil {
		return 0, errors.Wrap(err, "failed to refresh tag after recharge")
	}
	if err := tagmem.WriteWord(pc.port, tagmem.BAPMode, bapEnabled); err != nil {
		return 0, errors.Wrap(err, "failed to re-enable BAP")
	}
	pc.Sleep(PowerCycleSettle)

	if _, err := pc.port.SampleWindow(0, nil); err != nil {
		return 0, errors.Wrap(err, "failed to refresh tag after re-enabling BAP")
	}
	if err := tagmem.WriteWord(pc.port, tagmem.SensorDataMSW, zeroWord); err != nil {
		return 0, errors.Wrap(err, "failed to trigger temperature conversion")
	}
	pc.Sleep(FieldOffSettle)

	words, err := tagmem.ReadWords(pc.port, tagmem.SensorDataMSW, 2)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read sensor data")
	}
	return words[0], nil
}

// PseudoBAPStop disarms BAP and restores the passive field.
func (pc *PowerController) PseudoBAPStop() error {
	if err := pc.port.Select(pc.tag.EPC); err != nil {
		return errors.Wrapf(err, "failed to select tag %s", pc.tag.EPC)
	}
	if err := tagmem.WriteWord(pc.port, tagmem.BAPMode, bapDisabled); err != nil {
		return errors.Wrap(err, "failed to disable BAP")
	}
	pc.Sleep(PowerCycleSettle)

	if _, err := pc.port.SampleWindow(RechargeWindow, nil); err != nil {
		return errors.Wrap(err, "failed to restore passive field")
	}
	return nil
}

// ControlSnapshot is the raw content of the power control words.
type ControlSnapshot struct {
	TempSensor        [3]uint16
	IOControl         uint16
	BatteryManagement [2]uint16
	Total             uint16
	BAPMode           uint16
}

// Mode infers the configured mode from the snapshot.
// Semi-BAP and pseudo-BAP share a configuration, and are reported as SemiBAP.
func (s ControlSnapshot) Mode() PowerMode {
	switch {
	case s.IOControl == 0xE600 && s.BAPMode == 0:
		return Passive
	case s.IOControl == 0xE000 && s.BAPMode == 1:
		return BAP
	case s.IOControl == 0x0600:
		return SemiBAP
	}
	return ModeUnknown
}

// ReadConfig reads back every power control word.
func (pc *PowerController) ReadConfig() (ControlSnapshot, error) {
	var snap ControlSnapshot

	if err := pc.port.Select(pc.tag.EPC); err != nil {
		return snap, errors.Wrapf(err, "failed to select tag %s", pc.tag.EPC)
	}

	temps, err := tagmem.ReadWords(pc.port, tagmem.TempSensorControl1, 3)
	if err != nil {
		return snap, errors.Wrap(err, "failed to read temperature sensor control")
	}
	copy(snap.TempSensor[:], temps)

	if snap.IOControl, err = tagmem.ReadWord(pc.port, tagmem.IOControl); err != nil {
		return snap, errors.Wrap(err, "failed to read IO control")
	}

	bm, err := tagmem.ReadWords(pc.port, tagmem.BatteryManagement1, 2)
	if err != nil {
		return snap, errors.Wrap(err, "failed to read battery management")
	}
	copy(snap.BatteryManagement[:], bm)

	if snap.Total, err = tagmem.ReadWord(pc.port, tagmem.TotalWord); err != nil {
		return snap, errors.Wrap(err, "failed to read total word")
	}
	if snap.BAPMode, err = tagmem.ReadWord(pc.port, tagmem.BAPMode); err != nil {
		return snap, errors.Wrap(err, "failed to read BAP mode")
	}
	return snap, nil
}
