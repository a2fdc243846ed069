//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package sensorapp

import (
	"encoding/json"
	"fmt"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/adxl"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/bap"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/llrp"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/logutil"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/session"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/tagmem"
	"net/http"
	"periph.io/x/periph/conn/physic"
	"strconv"
	"time"
)

const (
	apiBase = "/api/v1"

	readersRoute        = apiBase + "/readers"
	reflectedPowerRoute = apiBase + "/readers/{device}/reflectedpower"
	tagStateRoute       = apiBase + "/tags/{epc}"
	tagRoute            = apiBase + "/tags/{device}/{epc}"
	calibrationRoute    = tagRoute + "/calibration"
	temperatureRoute    = tagRoute + "/temperature"
	configRoute         = tagRoute + "/config"
	modeRoute           = tagRoute + "/mode/{mode}"
	pseudoBAPRoute      = tagRoute + "/pseudobap"
	vibrationRoute      = tagRoute + "/vibration"
	selfTestRoute       = tagRoute + "/selftest"
	tempLogRoute        = tagRoute + "/templog"
	tempLogStartRoute   = tempLogRoute + "/start"
	tempLogStopRoute    = tempLogRoute + "/stop"
)

type route struct {
	path, method string
	f            http.HandlerFunc
}

func (app *SensorApp) routes() []route {
	return []route{
		{readersRoute, http.MethodGet, app.getReaders},
		{reflectedPowerRoute, http.MethodGet, app.getReflectedPower},
		{tagStateRoute, http.MethodGet, app.getTagState},
		{calibrationRoute, http.MethodPost, app.verifyCalibration},
		{temperatureRoute, http.MethodGet, app.getTemperature},
		{configRoute, http.MethodGet, app.getConfig},
		{modeRoute, http.MethodPut, app.setMode},
		{pseudoBAPRoute, http.MethodPost, app.pseudoBAPTemperature},
		{vibrationRoute, http.MethodPost, app.collectVibration},
		{selfTestRoute, http.MethodPost, app.selfTest},
		{tempLogRoute, http.MethodGet, app.getTempLog},
		{tempLogStartRoute, http.MethodPost, app.startTempLog},
		{tempLogStopRoute, http.MethodPost, app.stopTempLog},
	}
}

func (app *SensorApp) addRoutes() error {
	for _, r := range app.routes() {
		if err := app.addRoute(r.path, r.method, r.f); err != nil {
			return err
		}
	}
	return nil
}

func (app *SensorApp) addRoute(path, method string, f http.HandlerFunc) error {
	if err := app.edgexSdk.AddRoute(path, f, method); err != nil {
		return errors.Wrapf(err, "failed to add route, path=%s, method=%s", path, method)
	}
	return nil
}

// statusFor maps an operation's error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, llrp.ErrUnknownReader), errors.Is(err, ErrNoCampaign):
		return http.StatusNotFound
	case errors.Is(err, llrp.ErrReaderBusy), errors.Is(err, ErrCampaignRunning):
		return http.StatusConflict
	case tagmem.IsLinkError(err),
		errors.Is(err, adxl.ErrNotConnected),
		errors.Is(err, adxl.ErrCorruptFIFO):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (app *SensorApp) writeError(w http.ResponseWriter, status int, msg string) {
	app.lc.Error(msg)
	http.Error(w, msg, status)
}

func (app *SensorApp) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.lc.Error("Error writing response.", "error", err.Error())
	}
}

// durationParam returns the query parameter as a count of unit,
// or def if the parameter is absent.
func durationParam(req *http.Request, name string, unit, def time.Duration) (time.Duration, error) {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.Errorf("%s must be a positive integer, not %q", name, raw)
	}
	return time.Duration(n) * unit, nil
}

// requestTag returns the reader and tag addressed by the request.
func (app *SensorApp) requestTag(req *http.Request) (string, tagmem.TagID) {
	rv := mux.Vars(req)
	return rv["device"], app.tagID(rv["epc"], req.URL.Query().Get("tid"))
}

// runSession runs op against the addressed tag and writes its result.
func (app *SensorApp) runSession(w http.ResponseWriter, req *http.Request, desc string,
	op func(device string, s *session.Session) (interface{}, error)) {
	device, tag := app.requestTag(req)

	var result interface{}
	err := app.withSession(device, tag, func(s *session.Session) (err error) {
		result, err = op(device, s)
		return err
	})
	if err != nil {
		app.writeError(w, statusFor(err),
			fmt.Sprintf("Failed to %s: device=%s, epc=%s: %v", desc, device, tag.EPC, err))
		return
	}

	app.writeJSON(w, result)
}

// Routes
func (app *SensorApp) getReaders(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := app.readers.WriteReaders(w); err != nil {
		app.writeError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to write readers list: %v", err))
	}
}

type reflectedPowerResponse struct {
	Device       string
	FrequencyKHz int
	I, Q         int32
}

func (app *SensorApp) getReflectedPower(w http.ResponseWriter, req *http.Request) {
	device := mux.Vars(req)["device"]

	kHz := app.settings.ReflectedPowerKHz
	if raw := req.URL.Query().Get("frequency"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			app.writeError(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid frequency %q; it must be a positive integer in kHz", raw))
			return
		}
		kHz = n
	}

	release, err := app.readers.Acquire(device)
	if err != nil {
		app.writeError(w, statusFor(err), fmt.Sprintf("Failed to get reflected power: %v", err))
		return
	}
	defer release()

	i, q, err := app.openPort(device).ReflectedPower(physic.Frequency(kHz) * physic.KiloHertz)
	if err != nil {
		app.writeError(w, statusFor(err),
			fmt.Sprintf("Failed to get reflected power: device=%s: %v", device, err))
		return
	}

	app.writeJSON(w, reflectedPowerResponse{Device: device, FrequencyKHz: kHz, I: i, Q: q})
}

func (app *SensorApp) getTagState(w http.ResponseWriter, req *http.Request) {
	epc := mux.Vars(req)["epc"]
	rec, ok := app.state.Get(epc)
	if !ok {
		app.writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown tag: epc=%s", epc))
		return
	}
	app.writeJSON(w, rec)
}

func (app *SensorApp) verifyCalibration(w http.ResponseWriter, req *http.Request) {
	app.runSession(w, req, "verify calibration", func(device string, s *session.Session) (interface{}, error) {
		res, err := s.VerifyCalibration()
		if err != nil {
			return nil, err
		}
		app.logWrap().WarnIfErr(app.recordCalibration(device, s.Tag(), res), "Failed to publish calibration.",
			logutil.KeyValue{Key: "epc", Val: s.Tag().EPC})
		return res, nil
	})
}

func (app *SensorApp) getTemperature(w http.ResponseWriter, req *http.Request) {
	app.runSession(w, req, "read temperature", func(device string, s *session.Session) (interface{}, error) {
		r, err := s.ReadTemperature()
		if err != nil {
			return nil, err
		}
		app.logWrap().WarnIfErr(app.publishTemperature(device, r), "Failed to publish temperature.",
			logutil.KeyValue{Key: "epc", Val: r.Tag.EPC})
		return r, nil
	})
}

type configResponse struct {
	bap.ControlSnapshot
	Mode string
}

func (app *SensorApp) getConfig(w http.ResponseWriter, req *http.Request) {
	app.runSession(w, req, "read tag configuration", func(_ string, s *session.Session) (interface{}, error) {
		snap, err := s.ReadConfig()
		if err != nil {
			return nil, err
		}
		return configResponse{ControlSnapshot: snap, Mode: snap.Mode().String()}, nil
	})
}

func (app *SensorApp) setMode(w http.ResponseWriter, req *http.Request) {
	mode, err := bap.ParsePowerMode(mux.Vars(req)["mode"])
	if err != nil {
		app.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid power mode: %v", err))
		return
	}

	app.runSession(w, req, "set power mode", func(_ string, s *session.Session) (interface{}, error) {
		if err := s.SetMode(mode); err != nil {
			return nil, err
		}
		return struct{ Mode string }{mode.String()}, nil
	})
}

func (app *SensorApp) pseudoBAPTemperature(w http.ResponseWriter, req *http.Request) {
	discharge, err := durationParam(req, "discharge", time.Second, app.settings.Discharge())
	if err != nil {
		app.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	app.runSession(w, req, "take pseudo-BAP temperature", func(device string, s *session.Session) (interface{}, error) {
		r, err := s.PseudoBAPTemperature(discharge)
		if err != nil {
			return nil, err
		}
		app.logWrap().WarnIfErr(app.publishTemperature(device, r), "Failed to publish temperature.",
			logutil.KeyValue{Key: "epc", Val: r.Tag.EPC})
		return r, nil
	})
}

func (app *SensorApp) collectVibration(w http.ResponseWriter, req *http.Request) {
	window, err := durationParam(req, "window", time.Millisecond, app.settings.VibrationWindow())
	if err != nil {
		app.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	app.runSession(w, req, "collect vibration", func(device string, s *session.Session) (interface{}, error) {
		win, err := s.Vibration(window)
		if err != nil {
			return nil, err
		}
		app.logWrap().WarnIfErr(app.publishWindow(device, s.Tag(), win), "Failed to publish vibration.",
			logutil.KeyValue{Key: "epc", Val: s.Tag().EPC})
		app.recordSignal(s.Tag(), win)
		return newAccelerationReading(s.Tag(), win), nil
	})
}

type selfTestResponse struct {
	adxl.SelfTestResult
	Delta [3]int16
}

func (app *SensorApp) selfTest(w http.ResponseWriter, req *http.Request) {
	app.runSession(w, req, "run accelerometer self test", func(_ string, s *session.Session) (interface{}, error) {
		res, err := s.SelfTest()
		if err != nil {
			return nil, err
		}
		return selfTestResponse{SelfTestResult: res, Delta: res.Delta()}, nil
	})
}

func (app *SensorApp) getTempLog(w http.ResponseWriter, req *http.Request) {
	rv := mux.Vars(req)
	st, err := app.campaignStatus(rv["device"], rv["epc"])
	if err != nil {
		app.writeError(w, statusFor(err), fmt.Sprintf("Failed to get temperature log: %v", err))
		return
	}
	app.writeJSON(w, st)
}

func (app *SensorApp) startTempLog(w http.ResponseWriter, req *http.Request) {
	interval, err := durationParam(req, "interval", time.Second, app.settings.TempLogInterval())
	if err != nil {
		app.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	device, tag := app.requestTag(req)
	st, err := app.startCampaign(device, tag, interval)
	if err != nil {
		app.writeError(w, statusFor(err), fmt.Sprintf("Failed to start temperature log: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	app.writeJSON(w, st)
}

func (app *SensorApp) stopTempLog(w http.ResponseWriter, req *http.Request) {
	rv := mux.Vars(req)
	st, err := app.stopCampaign(rv["device"], rv["epc"])
	if err != nil {
		app.writeError(w, statusFor(err), fmt.Sprintf("Failed to stop temperature log: %v", err))
		return
	}
	app.writeJSON(w, st)
}
