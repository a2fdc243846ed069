//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package sensorapp

import (
	"github.com/pkg/errors"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/session"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/tagmem"
	"golang.org/x/net/context"
	"sync"
	"time"
)

var (
	ErrCampaignRunning = errors.New("a temperature log is already running for this tag")
	ErrNoCampaign      = errors.New("no temperature log is running for this tag")
)

// campaign is a temperature log running in the background.
// It holds its reader until it ends.
type campaign struct {
	Device   string
	EPC      string
	Started  time.Time
	Interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	readings int
	err      error
}

// CampaignStatus describes a running or finished temperature log.
type CampaignStatus struct {
	Device          string
	EPC             string
	Started         time.Time
	IntervalSeconds float64
	Running         bool
	Readings        int
	Error           string `json:",omitempty"`
}

func (c *campaign) status() CampaignStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := CampaignStatus{
		Device:          c.Device,
		EPC:             c.EPC,
		Started:         c.Started,
		IntervalSeconds: c.Interval.Seconds(),
		Readings:        c.readings,
	}
	select {
	case <-c.done:
	default:
		st.Running = true
	}
	if c.err != nil {
		st.Error = c.err.Error()
	}
	return st
}

func campaignKey(device, epc string) string {
	return device + "/" + epc
}

// startCampaign starts logging the tag's temperature every interval.
//
// The campaign holds the reader until it is stopped or fails,
// so no other session can use the reader in the meantime.
func (app *SensorApp) startCampaign(device string, tag tagmem.TagID, interval time.Duration) (CampaignStatus, error) {
	key := campaignKey(device, tag.EPC)

	app.campaignMu.Lock()
	defer app.campaignMu.Unlock()

	if c, ok := app.campaigns[key]; ok {
		select {
		case <-c.done:
		default:
			return c.status(), errors.Wrapf(ErrCampaignRunning, "%s", key)
		}
	}

	release, err := app.readers.Acquire(device)
	if err != nil {
		return CampaignStatus{}, err
	}

	ctx, cancel := context.WithCancel(app.ctx)
	c := &campaign{
		Device:   device,
		EPC:      tag.EPC,
		Started:  time.Now(),
		Interval: interval,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	app.campaigns[key] = c

	s := app.newSession(device, tag)
	sink := session.ReadingSinkFunc(func(r session.Reading) error {
		c.mu.Lock()
		c.readings++
		c.mu.Unlock()
		return app.publishTemperature(device, r)
	})

	app.campaignWg.Add(1)
	go func() {
		defer app.campaignWg.Done()
		defer close(c.done)
		defer release()
		defer cancel()

		app.lc.Info("Starting temperature log.", "device", device, "epc", tag.EPC, "interval", interval.String())
		_, err := s.TempLog(func() bool { return ctx.Err() == nil }, interval, sink)
		if err != nil {
			app.lc.Error("Temperature log failed.", "device", device, "epc", tag.EPC, "error", err.Error())
		}

		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
	}()

	return c.status(), nil
}

// stopCampaign asks the tag's temperature log to stop after its current iteration.
// It does not wait for the campaign to end.
func (app *SensorApp) stopCampaign(device, epc string) (CampaignStatus, error) {
	key := campaignKey(device, epc)

	app.campaignMu.Lock()
	c, ok := app.campaigns[key]
	app.campaignMu.Unlock()

	if !ok {
		return CampaignStatus{}, errors.Wrapf(ErrNoCampaign, "%s", key)
	}

	c.cancel()
	app.lc.Info("Stopping temperature log.", "device", device, "epc", epc)
	return c.status(), nil
}

// campaignStatus returns the status of the tag's most recent temperature log.
func (app *SensorApp) campaignStatus(device, epc string) (CampaignStatus, error) {
	key := campaignKey(device, epc)

	app.campaignMu.Lock()
	c, ok := app.campaigns[key]
	app.campaignMu.Unlock()

	if !ok {
		return CampaignStatus{}, errors.Wrapf(ErrNoCampaign, "%s", key)
	}
	return c.status(), nil
}

func (app *SensorApp) stopAllCampaigns() {
	app.campaignMu.Lock()
	for _, c := range app.campaigns {
		c.cancel()
	}
	app.campaignMu.Unlock()
}
