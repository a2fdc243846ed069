//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package sensorapp

import (
	"encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/adxl"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/bap"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/llrp"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/session"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/state"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/tagmem"
	"net/http"
	"net/http/httptest"
	"testing"
)

const tagPath = apiBase + "/tags/" + testDevice + "/" + testEPC

func (ta *testApp) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	ta.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}

func TestGetReaders(t *testing.T) {
	ta := makeTestApp(t)
	ta.readers.AddReader("SpeedwayR-10-EF-25")

	w := ta.do(t, http.MethodGet, readersRoute)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct{ Readers []string }
	decodeBody(t, w, &body)
	require.Equal(t, []string{"SpeedwayR-10-EF-25", testDevice}, body.Readers)
}

func TestGetTemperature(t *testing.T) {
	ta := makeTestApp(t)
	ta.tag.Set(tagmem.SensorDataMSW, 0x005C)

	w := ta.do(t, http.MethodGet, tagPath+"/temperature")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var r session.Reading
	decodeBody(t, w, &r)
	require.Equal(t, float32(23), r.Celsius)
	require.Equal(t, testEPC, r.Tag.EPC)

	pushed := ta.coreData.pushed(resourceTemperature)
	require.Len(t, pushed, 1)
	require.Equal(t, testDevice, pushed[0].device)

	var tr temperatureReading
	require.NoError(t, json.Unmarshal([]byte(pushed[0].value), &tr))
	require.Equal(t, float32(23), tr.Celsius)
	require.Equal(t, uint16(0x005C), tr.Raw)
}

func TestTIDIsRemembered(t *testing.T) {
	ta := makeTestApp(t)

	w := ta.do(t, http.MethodPut, tagPath+"/mode/passive?tid="+testTID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ta.do(t, http.MethodGet, tagPath+"/temperature")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var r session.Reading
	decodeBody(t, w, &r)
	require.Equal(t, testTID, r.Tag.TID)
}

func TestTemperatureErrors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		setup  func(ta *testApp)
		status int
	}{
		{
			name:   "unknown reader",
			path:   apiBase + "/tags/SpeedwayR-00-00-00/" + testEPC + "/temperature",
			status: http.StatusNotFound,
		},
		{
			name: "busy reader",
			path: tagPath + "/temperature",
			setup: func(ta *testApp) {
				_, err := ta.readers.Acquire(testDevice)
				require.NoError(t, err)
			},
			status: http.StatusConflict,
		},
		{
			name:   "tag out of the field",
			path:   tagPath + "/temperature",
			setup:  func(ta *testApp) { ta.tag.Absent = true },
			status: http.StatusBadGateway,
		},
		{
			name:   "wrong tag",
			path:   apiBase + "/tags/" + testDevice + "/3008/temperature",
			status: http.StatusBadGateway,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := makeTestApp(t)
			if tt.setup != nil {
				tt.setup(ta)
			}
			w := ta.do(t, http.MethodGet, tt.path)
			require.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestReaderIsReleased(t *testing.T) {
	ta := makeTestApp(t)
	ta.tag.Absent = true
	require.Equal(t, http.StatusBadGateway, ta.do(t, http.MethodGet, tagPath+"/temperature").Code)

	release, err := ta.readers.Acquire(testDevice)
	require.NoError(t, err)
	release()
}

func TestVerifyCalibration(t *testing.T) {
	tests := []struct {
		name         string
		factory      uint16
		active       uint16
		wantRepaired bool
		wantActive   uint16
	}{
		{"in sync", 0x03A0, 0x03A5, false, 0x03A5},
		{"drifted", 0x03A0, 0x07A5, true, 0x03A0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := makeTestApp(t)
			ta.tag.Set(tagmem.CalibrationFactory, tt.factory)
			ta.tag.Set(tagmem.CalibrationActive, tt.active)

			w := ta.do(t, http.MethodPost, tagPath+"/calibration")
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var res bap.CalibrationResult
			decodeBody(t, w, &res)
			require.Equal(t, tt.wantRepaired, res.Repaired)
			require.Equal(t, tt.wantActive, ta.tag.Get(tagmem.CalibrationActive))

			rec, ok := ta.state.Get(testEPC)
			require.True(t, ok)
			require.Equal(t, tt.wantRepaired, rec.CalibrationRepaired)
			require.False(t, rec.CalibrationChecked.IsZero())

			require.Len(t, ta.coreData.pushed(resourceCalibration), 1)
		})
	}
}

func TestSetMode(t *testing.T) {
	ta := makeTestApp(t)

	w := ta.do(t, http.MethodPut, tagPath+"/mode/bap")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	rec, ok := ta.state.Get(testEPC)
	require.True(t, ok)
	require.Equal(t, "bap", rec.Mode)

	w = ta.do(t, http.MethodGet, tagPath+"/config")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var cfg configResponse
	decodeBody(t, w, &cfg)
	require.Equal(t, "bap", cfg.Mode)
	require.Equal(t, [2]uint16{0x2001, 0x0001}, cfg.BatteryManagement)
}

func TestSetModeInvalid(t *testing.T) {
	ta := makeTestApp(t)
	w := ta.do(t, http.MethodPut, tagPath+"/mode/turbo")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, ta.tag.Writes())
}

func TestPseudoBAPTemperature(t *testing.T) {
	ta := makeTestApp(t)
	ta.tag.SensorCode = 0x005C

	w := ta.do(t, http.MethodPost, tagPath+"/pseudobap?discharge=5")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var r session.Reading
	decodeBody(t, w, &r)
	require.Equal(t, float32(23), r.Celsius)
	require.Len(t, ta.coreData.pushed(resourceTemperature), 1)

	rec, _ := ta.state.Get(testEPC)
	require.Equal(t, "pseudobap", rec.Mode)

	w = ta.do(t, http.MethodPost, tagPath+"/pseudobap?discharge=soon")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCollectVibration(t *testing.T) {
	ta := makeTestApp(t)
	ta.tag.Samples = [][3]int16{{1, 2, 3}, {4, 5, 6}, {-7, -8, -9}}

	w := ta.do(t, http.MethodPost, tagPath+"/vibration")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var ar accelerationReading
	decodeBody(t, w, &ar)
	require.Len(t, ar.Samples, 3)
	assert.Equal(t, [3]int64{-7, -8, -9}, [3]int64{ar.Samples[2][1], ar.Samples[2][2], ar.Samples[2][3]})
	require.Len(t, ta.coreData.pushed(resourceAcceleration), 1)

	rec, _ := ta.state.Get(testEPC)
	require.Equal(t, "semibap", rec.Mode)
	require.Equal(t, []float64{ta.tag.Stats.PeakRSSI}, rec.PeakRSSI)

	ta.tag.Stats.PeakRSSI = -60
	w = ta.do(t, http.MethodPost, tagPath+"/vibration")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ta.do(t, http.MethodGet, apiBase+"/tags/"+testEPC)
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &rec)
	require.Equal(t, []float64{-48, -60}, rec.PeakRSSI)
	require.Equal(t, -54.0, rec.MeanPeakRSSI)
}

func TestCollectVibrationCorruptFIFO(t *testing.T) {
	ta := makeTestApp(t)
	ta.tag.Samples = [][3]int16{{1, 2, 3}}
	ta.tag.ExtraEntries = 1

	w := ta.do(t, http.MethodPost, tagPath+"/vibration")
	require.Equal(t, http.StatusBadGateway, w.Code)
	require.Empty(t, ta.coreData.pushed(resourceAcceleration))
}

func TestSelfTest(t *testing.T) {
	ta := makeTestApp(t)
	ta.tag.Static = [3]int16{10, 20, 30}
	ta.tag.SelfTestDelta = [3]int16{5, -5, 50}

	w := ta.do(t, http.MethodPost, tagPath+"/selftest")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res selfTestResponse
	decodeBody(t, w, &res)
	require.Equal(t, [3]int16{5, -5, 50}, res.Delta)
	require.Equal(t, byte(0), ta.tag.Register(adxl.RegSelfTest))
}

func TestGetReflectedPower(t *testing.T) {
	ta := makeTestApp(t)

	w := ta.do(t, http.MethodGet, apiBase+"/readers/"+testDevice+"/reflectedpower?frequency=902750")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rp reflectedPowerResponse
	decodeBody(t, w, &rp)
	require.Equal(t, 902750, rp.FrequencyKHz)
	require.Equal(t, int32(902), rp.I)
	require.Equal(t, int32(-7), rp.Q)

	w = ta.do(t, http.MethodGet, apiBase+"/readers/"+testDevice+"/reflectedpower")
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &rp)
	require.Equal(t, ta.settings.ReflectedPowerKHz, rp.FrequencyKHz)

	w = ta.do(t, http.MethodGet, apiBase+"/readers/"+testDevice+"/reflectedpower?frequency=-1")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTagState(t *testing.T) {
	ta := makeTestApp(t)

	w := ta.do(t, http.MethodGet, apiBase+"/tags/"+testEPC)
	require.Equal(t, http.StatusNotFound, w.Code)

	ta.state.Update(testEPC, func(rec *state.TagRecord) { rec.Mode = "semibap" })
	w = ta.do(t, http.MethodGet, apiBase+"/tags/"+testEPC)
	require.Equal(t, http.StatusOK, w.Code)

	var rec state.TagRecord
	decodeBody(t, w, &rec)
	require.Equal(t, "semibap", rec.Mode)
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusNotFound, statusFor(llrp.ErrUnknownReader))
	require.Equal(t, http.StatusConflict, statusFor(llrp.ErrReaderBusy))
	require.Equal(t, http.StatusBadGateway, statusFor(&tagmem.LinkError{Op: "read", Err: tagmem.ErrTimeout}))
	require.Equal(t, http.StatusBadGateway, statusFor(adxl.ErrNotConnected))
	require.Equal(t, http.StatusInternalServerError, statusFor(bap.ErrCalibrationMismatch))
}
