//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package sensorapp

import (
	"encoding/json"
	"fmt"
	"github.com/edgexfoundry/app-functions-sdk-go/appcontext"
	"github.com/edgexfoundry/go-mod-core-contracts/models"
	"github.com/pkg/errors"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/adxl"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/bap"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/llrp"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/logutil"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/session"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/state"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/tagmem"
	"golang.org/x/net/context"
	"strings"
	"time"
)

const (
	resourceReaderNotification = "ReaderEventNotification"

	resourceTemperature  = "BAPTemperature"
	resourceAcceleration = "BAPAcceleration"
	resourceCalibration  = "BAPCalibration"
)

// coreDataPusher sends readings to EdgeX core-data.
// It is satisfied by the SDK's appcontext.Context.
type coreDataPusher interface {
	PushToCoreData(deviceName string, readingName string, value interface{}) (*models.Event, error)
}

// processEdgeXEvent handles the reader event notifications
// that pass the SDK pipeline's filter.
//
// The SDK's context is only available inside the pipeline,
// so the first event also provides the context used to push readings to core-data.
func (app *SensorApp) processEdgeXEvent(edgexcontext *appcontext.Context, params ...interface{}) (bool, interface{}) {
	if edgexcontext != nil {
		app.coreMu.Lock()
		if app.coreData == nil {
			app.coreData = edgexcontext
			app.lc.Debug("Grabbed app-functions-sdk context.")
		}
		app.coreMu.Unlock()
	}

	if len(params) < 1 {
		return false, errors.New("processEdgeXEvent: No data received")
	}

	event, ok := params[0].(models.Event)
	if !ok {
		return false, errors.New("processEdgeXEvent: didn't receive expected Event type")
	}

	if len(event.Readings) < 1 {
		return false, errors.New("event contains no Readings")
	}

	for i := range event.Readings {
		reading := &event.Readings[i]
		switch reading.Name {
		default:
			// this should never happen because it is pre-filtered by the SDK pipeline
			app.lc.Error("Unknown reading name.", "reading", reading.Name)
			continue

		case resourceReaderNotification:
			notification := &llrp.ReaderEventNotification{}
			decoder := json.NewDecoder(strings.NewReader(reading.Value))
			decoder.UseNumber()
			if err := decoder.Decode(notification); err != nil {
				app.lc.Error("Failed to decode reader event notification", "error", err.Error())
				continue
			}

			app.handleReaderEvent(event.Device, notification)
		}
	}

	return false, nil
}

// handleReaderEvent handles an llrp.ReaderEventNotification from the Device Service.
//
// If a device reports a new connection event, this adds the reader to the set of known readers.
// If a device reports a close event, it removes that reader.
func (app *SensorApp) handleReaderEvent(device string, notification *llrp.ReaderEventNotification) {
	switch {
	case notification.Connected():
		app.lc.Info(fmt.Sprintf("Adding reader: %v", device))
		app.readers.AddReader(device)

	case notification.Closed():
		app.lc.Info(fmt.Sprintf("Removing reader: %v", device))
		app.readers.RemoveReader(device)
	}
}

// taskLoop waits for the service to shut down,
// then stops any running campaigns and persists the tag state.
func (app *SensorApp) taskLoop(ctx context.Context) {
	app.lc.Info("Starting task loop.")
	<-ctx.Done()

	app.lc.Info("Stopping task loop.")
	app.stopAllCampaigns()
	app.campaignWg.Wait()

	if err := app.state.Save(); err != nil {
		app.lc.Error("Failed to persist tag state.", "error", err.Error())
	}
	app.lc.Info("Task loop stopped.")
}

// pushToCoreData sends value as a JSON-encoded reading from device.
// Until the pipeline has processed its first event, there is no way to reach core-data,
// so the reading is dropped.
func (app *SensorApp) pushToCoreData(device, resource string, value interface{}) error {
	app.coreMu.RLock()
	cd := app.coreData
	app.coreMu.RUnlock()

	if cd == nil {
		app.lc.Debug("Core-data is not available yet; dropping reading.", "device", device, "resource", resource)
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "error marshalling %s", resource)
	}

	if _, err := cd.PushToCoreData(device, resource, string(payload)); err != nil {
		return errors.Wrapf(err, "unable to push %s to core-data", resource)
	}
	return nil
}

// temperatureReading is the core-data payload for a temperature.
type temperatureReading struct {
	EPC       string
	TID       string `json:",omitempty"`
	Celsius   float32
	Raw       uint16
	Timestamp int64
}

// publishTemperature sends r to core-data and OpenTSDB.
func (app *SensorApp) publishTemperature(device string, r session.Reading) error {
	var errs llrp.MultiErr
	err := app.pushToCoreData(device, resourceTemperature, temperatureReading{
		EPC:       r.Tag.EPC,
		TID:       r.Tag.TID,
		Celsius:   r.Celsius,
		Raw:       r.Raw,
		Timestamp: session.UnixMilli(r.Time),
	})
	if err != nil {
		errs = append(errs, err)
	}

	if app.tsdb != nil {
		if err := app.tsdb.PutReading(r); err != nil {
			errs = append(errs, err)
		}
	}

	if errs != nil {
		return errs
	}
	return nil
}

// accelerationReading is the core-data payload for an accelerometer window.
type accelerationReading struct {
	EPC      string
	TID      string `json:",omitempty"`
	Start    int64
	PeakRSSI float64
	Samples  [][4]int64
}

func newAccelerationReading(tag tagmem.TagID, w adxl.Window) accelerationReading {
	ar := accelerationReading{
		EPC:      tag.EPC,
		TID:      tag.TID,
		Start:    session.UnixMilli(w.Start),
		PeakRSSI: w.Signal.PeakRSSI,
		Samples:  make([][4]int64, len(w.Samples)),
	}
	for i, s := range w.Samples {
		ar.Samples[i] = [4]int64{session.UnixMilli(s.Time), int64(s.X), int64(s.Y), int64(s.Z)}
	}
	return ar
}

// publishWindow sends w to core-data and OpenTSDB.
func (app *SensorApp) publishWindow(device string, tag tagmem.TagID, w adxl.Window) error {
	var errs llrp.MultiErr
	if err := app.pushToCoreData(device, resourceAcceleration, newAccelerationReading(tag, w)); err != nil {
		errs = append(errs, err)
	}

	if app.tsdb != nil {
		if err := app.tsdb.PutWindow(tag, w); err != nil {
			errs = append(errs, err)
		}
	}

	if errs != nil {
		return errs
	}
	return nil
}

// calibrationReading is the core-data payload for a calibration check.
type calibrationReading struct {
	EPC      string
	Factory  uint16
	Active   uint16
	Repaired bool
	Trim     float32
}

// recordCalibration updates the tag's state and notifies core-data of the result.
func (app *SensorApp) recordCalibration(device string, tag tagmem.TagID, res bap.CalibrationResult) error {
	app.updateTag(tag, func(rec *state.TagRecord) {
		rec.CalibrationChecked = time.Now()
		rec.CalibrationRepaired = res.Repaired
		rec.Trim = res.Trim
	})

	return app.pushToCoreData(device, resourceCalibration, calibrationReading{
		EPC:      tag.EPC,
		Factory:  res.Pair.Factory,
		Active:   res.Pair.Active,
		Repaired: res.Repaired,
		Trim:     res.Trim,
	})
}

// recordMode remembers the power mode a session left the tag in.
func (app *SensorApp) recordMode(tag tagmem.TagID, mode bap.PowerMode) {
	if mode == bap.ModeUnknown {
		return
	}
	app.updateTag(tag, func(rec *state.TagRecord) {
		rec.Mode = mode.String()
		rec.ModeUpdated = time.Now()
	})
}

// recordSignal adds the window's peak RSSI to the tag's signal history.
func (app *SensorApp) recordSignal(tag tagmem.TagID, w adxl.Window) {
	if w.Signal.Rounds == 0 {
		return
	}
	app.updateTag(tag, func(rec *state.TagRecord) {
		rec.AddPeakRSSI(w.Signal.PeakRSSI)
	})
}

func (app *SensorApp) logWrap() logutil.LogWrap {
	return logutil.LogWrap{LoggingClient: app.lc}
}

func (app *SensorApp) updateTag(tag tagmem.TagID, f func(rec *state.TagRecord)) {
	app.state.Update(tag.EPC, func(rec *state.TagRecord) {
		rec.EPC = tag.EPC
		if tag.TID != "" {
			rec.TID = tag.TID
		}
		f(rec)
	})

	app.logWrap().WarnIfErr(app.state.Save(), "Failed to persist tag state.",
		logutil.KeyValue{Key: "epc", Val: tag.EPC})
}

// tagID returns the identity of the tag with the given EPC.
// If tid is empty, the last known TID is used.
func (app *SensorApp) tagID(epc, tid string) tagmem.TagID {
	if tid == "" {
		if rec, ok := app.state.Get(epc); ok {
			tid = rec.TID
		}
	}
	return tagmem.TagID{EPC: epc, TID: tid}
}

// newSession returns a session with the tag through the named reader.
// The caller must hold the reader.
func (app *SensorApp) newSession(device string, tag tagmem.TagID) *session.Session {
	port := app.openPort(device)
	opts := append([]session.Option{session.WithReflectedPower(port.ReflectedPower)}, app.sessionOpts...)
	return session.New(port, tag, app.lc, opts...)
}

// withSession holds the named reader while f runs a session with the tag.
func (app *SensorApp) withSession(device string, tag tagmem.TagID, f func(s *session.Session) error) error {
	release, err := app.readers.Acquire(device)
	if err != nil {
		return err
	}
	defer release()

	s := app.newSession(device, tag)
	err = f(s)
	app.recordMode(tag, s.Mode())
	return err
}
