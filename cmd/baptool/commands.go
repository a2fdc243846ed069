//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/adxl"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/bap"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/session"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/state"
	"os"
	"os/signal"
	"periph.io/x/periph/conn/physic"
	"sync/atomic"
	"syscall"
	"time"
)

func commands() []cli.Command {
	return []cli.Command{
		{
			Name:   "calibrate",
			Usage:  "Verify the tag's calibration, and repair it if needed",
			Action: action(cmdCalibrate),
		},
		{
			Name:      "mode",
			Usage:     "Configure the tag's power mode",
			ArgsUsage: "passive|semibap|bap|pseudobap",
			Action:    action(cmdMode),
		},
		{
			Name:   "readconfig",
			Usage:  "Print the tag's power and sensor control words",
			Action: action(cmdReadConfig),
		},
		{
			Name:   "temperature",
			Usage:  "Read the latest temperature conversion",
			Action: action(cmdTemperature),
		},
		{
			Name:   "pseudobap",
			Usage:  "Take one pseudo-BAP temperature reading",
			Action: action(cmdPseudoBAP),
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "discharge",
					Usage: "Seconds to let the tag discharge; overrides the config file",
				},
			},
		},
		{
			Name:   "vibration",
			Usage:  "Collect one accelerometer window",
			Action: action(cmdVibration),
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "window",
					Usage: "Minimum window length in milliseconds; overrides the config file",
				},
			},
		},
		{
			Name:   "selftest",
			Usage:  "Run the accelerometer self test",
			Action: action(cmdSelfTest),
		},
		{
			Name:   "reflectedpower",
			Usage:  "Print the reader's reflected power",
			Action: action(cmdReflectedPower),
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "frequency",
					Value: 915250,
					Usage: "Carrier frequency in kHz",
				},
			},
		},
		{
			Name:   "templog",
			Usage:  "Log the temperature until interrupted",
			Action: action(cmdTempLog),
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "interval",
					Usage: "Seconds between readings; overrides the config file",
				},
				cli.IntFlag{
					Name:  "count",
					Usage: "Stop after this many readings; 0 means no limit",
				},
				cli.StringFlag{
					Name:  "csv",
					Usage: "CSV file to append readings to; overrides the config file",
				},
			},
		},
	}
}

// record updates the tag's state, if a state backend is configured.
func (t *tool) record(f func(rec *state.TagRecord)) {
	if t.state == nil {
		return
	}

	tag := t.sess.Tag()
	t.state.Update(tag.EPC, func(rec *state.TagRecord) {
		if tag.TID != "" {
			rec.TID = tag.TID
		}
		f(rec)
	})
	if err := t.state.Save(); err != nil {
		logrus.Warnf("Failed to save state: %v", err)
	}
}

func (t *tool) recordMode() {
	mode := t.sess.Mode()
	if mode == bap.ModeUnknown {
		return
	}
	t.record(func(rec *state.TagRecord) {
		rec.Mode = mode.String()
		rec.ModeUpdated = time.Now()
	})
}

// recordSignal adds the window's peak RSSI to the tag's history,
// and returns the mean over that history.
func (t *tool) recordSignal(w adxl.Window) (mean float64, ok bool) {
	if t.state == nil || w.Signal.Rounds == 0 {
		return 0, false
	}
	t.record(func(rec *state.TagRecord) {
		rec.AddPeakRSSI(w.Signal.PeakRSSI)
		mean = rec.MeanPeakRSSI
	})
	return mean, true
}

func (t *tool) export(r session.Reading) {
	if t.db == nil {
		return
	}
	if err := t.db.PutReading(r); err != nil {
		logrus.Warnf("Failed to export reading: %v", err)
	}
}

func logReading(r session.Reading) {
	logrus.WithFields(logrus.Fields{
		"epc":  r.Tag.EPC,
		"raw":  r.Raw,
		"time": r.Time.Format(time.RFC3339Nano),
	}).Infof("%.2f °C", r.Celsius)
}

func cmdCalibrate(_ *cli.Context, t *tool) error {
	res, err := t.sess.VerifyCalibration()
	if err != nil {
		return err
	}

	t.record(func(rec *state.TagRecord) {
		rec.CalibrationChecked = time.Now()
		rec.CalibrationRepaired = res.Repaired
		rec.Trim = res.Trim
	})

	fields := logrus.Fields{"factory": res.Pair.Factory, "active": res.Pair.Active}
	if res.Repaired {
		logrus.WithFields(fields).Warn("Calibration was out of sync and has been restored.")
		return nil
	}
	logrus.WithFields(fields).Infof("Calibration verified; trim %.2f °C", res.Trim)
	return nil
}

func cmdMode(c *cli.Context, t *tool) error {
	mode, err := bap.ParsePowerMode(c.Args().First())
	if err != nil {
		return err
	}
	if err := t.sess.SetMode(mode); err != nil {
		return err
	}
	t.recordMode()
	logrus.Infof("Configured %s mode.", mode)
	return nil
}

func cmdReadConfig(_ *cli.Context, t *tool) error {
	snap, err := t.sess.ReadConfig()
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"tempSensor":        snap.TempSensor,
		"ioControl":         snap.IOControl,
		"batteryManagement": snap.BatteryManagement,
		"total":             snap.Total,
		"bapMode":           snap.BAPMode,
	}).Infof("Tag looks like %s mode.", snap.Mode())
	return nil
}

func cmdTemperature(_ *cli.Context, t *tool) error {
	r, err := t.sess.ReadTemperature()
	if err != nil {
		return err
	}
	logReading(r)
	t.export(r)
	return nil
}

func cmdPseudoBAP(c *cli.Context, t *tool) error {
	discharge := t.cfg.Discharge()
	if n := c.Int("discharge"); n > 0 {
		discharge = time.Duration(n) * time.Second
	}

	logrus.Infof("Discharging for %v; this takes a while.", discharge)
	r, err := t.sess.PseudoBAPTemperature(discharge)
	t.recordMode()
	if err != nil {
		return err
	}
	logReading(r)
	t.export(r)
	return nil
}

func cmdVibration(c *cli.Context, t *tool) error {
	window := t.cfg.VibrationWindow()
	if n := c.Int("window"); n > 0 {
		window = time.Duration(n) * time.Millisecond
	}

	w, err := t.sess.Vibration(window)
	t.recordMode()
	if err != nil {
		return err
	}

	for _, s := range w.Samples {
		logrus.WithFields(logrus.Fields{"x": s.X, "y": s.Y, "z": s.Z}).
			Info(s.Time.Format(time.RFC3339Nano))
	}
	logrus.Infof("Collected %d samples; peak RSSI %.1f dBm.", len(w.Samples), w.Signal.PeakRSSI)
	if mean, ok := t.recordSignal(w); ok {
		logrus.Infof("Mean peak RSSI of the last windows: %.1f dBm.", mean)
	}

	if t.db != nil {
		if err := t.db.PutWindow(t.sess.Tag(), w); err != nil {
			logrus.Warnf("Failed to export window: %v", err)
		}
	}
	return nil
}

func cmdSelfTest(_ *cli.Context, t *tool) error {
	res, err := t.sess.SelfTest()
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"before": res.Before,
		"after":  res.After,
	}).Infof("Self test delta: %v", res.Delta())
	return nil
}

func cmdReflectedPower(c *cli.Context, t *tool) error {
	freq := physic.Frequency(c.Int("frequency")) * physic.KiloHertz
	i, q, err := t.sess.ReflectedPower(freq)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"i": i, "q": q}).Infof("Reflected power at %s.", freq)
	return nil
}

func cmdTempLog(c *cli.Context, t *tool) error {
	interval := t.cfg.TempLogInterval()
	if n := c.Int("interval"); n > 0 {
		interval = time.Duration(n) * time.Second
	}

	csvFile := t.cfg.Campaign.CSVFile
	if f := c.String("csv"); f != "" {
		csvFile = f
	}

	sinks := multiSink{session.ReadingSinkFunc(func(r session.Reading) error {
		logReading(r)
		return nil
	})}

	if csvFile != "" {
		f, csvOut, err := openCSVLog(csvFile)
		if err != nil {
			return err
		}
		defer f.Close()
		sinks = append(sinks, csvOut)
	}
	if t.db != nil {
		sinks = append(sinks, t.db)
	}

	var stop int32
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		if _, ok := <-signals; ok {
			logrus.Info("Stopping after the current reading.")
			atomic.StoreInt32(&stop, 1)
		}
	}()

	limit := c.Int("count")
	taken := 0
	shouldContinue := func() bool {
		if atomic.LoadInt32(&stop) != 0 {
			return false
		}
		if limit > 0 && taken >= limit {
			return false
		}
		taken++
		return true
	}

	n, err := t.sess.TempLog(shouldContinue, interval, sinks)
	logrus.Infof("Logged %d readings.", n)
	return err
}
