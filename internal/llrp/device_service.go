//
// Copyright (C) 2020 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package llrp reaches tags through the EdgeX RFID LLRP device service,
// and tracks which readers are connected and in use.
package llrp

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"github.com/pkg/errors"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/tagmem"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	basePath = "/api/v1/device/name/"
	maxBody  = 100 * 1024

	tagDataReading        = "TagData"
	inventoryStatsReading = "InventoryStats"
	reflectedPowerReading = "ReflectedPower"
)

// DSClient sends tag access commands to readers through the LLRP device service.
type DSClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewDSClient(host *url.URL, c *http.Client) DSClient {
	base := url.URL{
		Scheme: host.Scheme,
		Opaque: host.Opaque,
		User:   host.User,
		Host:   host.Host,
		Path:   basePath,
	}

	return DSClient{
		baseURL:    base.String(),
		httpClient: c,
	}
}

type edgexResp struct {
	Readings []struct {
		Name, Value string
	}
}

func (r edgexResp) reading(name string) (string, bool) {
	for _, reading := range r.Readings {
		if reading.Name == name {
			return reading.Value, true
		}
	}
	return "", false
}

// linkError classifies a device service failure as a tag link failure.
func linkError(op string, bank tagmem.MemoryBank, addr tagmem.Address, cause error, detail string) error {
	return errors.WithMessage(&tagmem.LinkError{Op: op, Bank: bank, Address: addr, Err: cause}, detail)
}

// do sends a command and decodes the EdgeX response, if any.
// Transport failures and bad status codes become tagmem.LinkErrors.
func (ds DSClient) do(req *http.Request, op string, bank tagmem.MemoryBank, addr tagmem.Address) (edgexResp, error) {
	var resp edgexResp

	r, err := ds.httpClient.Do(req)
	if err != nil {
		return resp, linkError(op, bank, addr, tagmem.ErrNoResponse, err.Error())
	}
	defer r.Body.Close()

	if r.StatusCode == http.StatusGatewayTimeout {
		return resp, linkError(op, bank, addr, tagmem.ErrTimeout, "device service timed out")
	}
	if !(200 <= r.StatusCode && r.StatusCode < 300) {
		return resp, linkError(op, bank, addr, tagmem.ErrNoResponse,
			"unexpected status code: "+strconv.Itoa(r.StatusCode))
	}

	content, err := ioutil.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return resp, linkError(op, bank, addr, tagmem.ErrNoResponse, err.Error())
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return resp, nil
	}

	if err := json.Unmarshal(content, &resp); err != nil {
		return resp, linkError(op, bank, addr, tagmem.ErrMalformedReply, err.Error())
	}
	return resp, nil
}

func (ds DSClient) put(device, command string, body interface{},
	op string, bank tagmem.MemoryBank, addr tagmem.Address) (edgexResp, error) {
	edgexReq, err := json.Marshal(body)
	if err != nil {
		return edgexResp{}, errors.Wrapf(err, "failed to marshal %s request", command)
	}

	req, err := http.NewRequest("PUT", ds.baseURL+device+"/"+command, bytes.NewReader(edgexReq))
	if err != nil {
		return edgexResp{}, errors.Wrapf(err, "failed to create %s request", command)
	}

	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	return ds.do(req, op, bank, addr)
}

// SelectTag makes epc the target of the device's subsequent tag accesses.
func (ds DSClient) SelectTag(device, epc string) error {
	_, err := ds.put(device, "selectTag", struct{ EPC string }{epc}, "select", 0, 0)
	return err
}

// ReadTag reads wordCount words from the tag's memory.
func (ds DSClient) ReadTag(device, epc string, bank tagmem.MemoryBank, addr tagmem.Address, wordCount uint16) ([]byte, error) {
	body := struct {
		EPC       string
		Bank      uint8
		Address   uint16
		WordCount uint16
	}{epc, uint8(bank), uint16(addr), wordCount}

	resp, err := ds.put(device, "readTag", body, "read", bank, addr)
	if err != nil {
		return nil, err
	}

	value, ok := resp.reading(tagDataReading)
	if !ok {
		return nil, linkError("read", bank, addr, tagmem.ErrMalformedReply, "missing "+tagDataReading)
	}

	data, err := hex.DecodeString(value)
	if err != nil {
		return nil, linkError("read", bank, addr, tagmem.ErrMalformedReply, err.Error())
	}
	return data, nil
}

// WriteTag writes one word to the tag's memory.
func (ds DSClient) WriteTag(device, epc string, bank tagmem.MemoryBank, addr tagmem.Address, word tagmem.Word) error {
	body := struct {
		EPC     string
		Bank    uint8
		Address uint16
		Data    string
	}{epc, uint8(bank), uint16(addr), strings.ToUpper(hex.EncodeToString(word[:]))}

	_, err := ds.put(device, "writeTag", body, "write", bank, addr)
	return err
}

// Inventory runs inventory rounds on the device for d,
// or a single round if d is zero.
func (ds DSClient) Inventory(device string, d time.Duration) (tagmem.LinkStats, error) {
	var stats tagmem.LinkStats

	body := struct{ DurationMillis int64 }{d.Milliseconds()}
	resp, err := ds.put(device, "inventory", body, "inventory", 0, 0)
	if err != nil {
		return stats, err
	}

	value, ok := resp.reading(inventoryStatsReading)
	if !ok {
		return stats, linkError("inventory", 0, 0, tagmem.ErrMalformedReply, "missing "+inventoryStatsReading)
	}
	if err := json.Unmarshal([]byte(value), &stats); err != nil {
		return stats, linkError("inventory", 0, 0, tagmem.ErrMalformedReply, err.Error())
	}
	return stats, nil
}

// ReflectedPower returns the raw I/Q reflected power the device measures at freqKHz.
func (ds DSClient) ReflectedPower(device string, freqKHz int64) (i, q int32, err error) {
	req, err := http.NewRequest("GET",
		ds.baseURL+device+"/reflectedPower?frequency="+strconv.FormatInt(freqKHz, 10), nil)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to create reflected power request")
	}

	resp, err := ds.do(req, "reflected power", 0, 0)
	if err != nil {
		return 0, 0, err
	}

	value, ok := resp.reading(reflectedPowerReading)
	if !ok {
		return 0, 0, linkError("reflected power", 0, 0, tagmem.ErrMalformedReply, "missing "+reflectedPowerReading)
	}

	var iq struct{ I, Q int32 }
	if err := json.Unmarshal([]byte(value), &iq); err != nil {
		return 0, 0, linkError("reflected power", 0, 0, tagmem.ErrMalformedReply, err.Error())
	}
	return iq.I, iq.Q, nil
}

// GetDevices returns the names of the devices listed at devicesURL,
// an EdgeX core-metadata device query.
func GetDevices(devicesURL string, client *http.Client) ([]string, error) {
	req, err := http.NewRequest(http.MethodGet, devicesURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("GET failed with status: %d", resp.StatusCode)
	}

	respBody, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}

	ds := &[]struct{ Name string }{}
	if err := json.Unmarshal(respBody, ds); err != nil {
		return nil, errors.Wrap(err, "failed to parse EdgeX device list")
	}

	deviceList := make([]string, len(*ds))
	for i, dev := range *ds {
		deviceList[i] = dev.Name
	}
	return deviceList, nil
}
