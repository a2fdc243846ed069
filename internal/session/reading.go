//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/adxl"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/tagmem"
	"time"
)

// Reading is a single decoded temperature.
type Reading struct {
	Tag     tagmem.TagID
	Time    time.Time
	Celsius float32
	// Raw is the sensor data word the value was decoded from.
	Raw uint16
}

// ReadingSink receives temperature readings as they are taken.
type ReadingSink interface {
	PutReading(r Reading) error
}

// ReadingSinkFunc adapts a function to a ReadingSink.
type ReadingSinkFunc func(r Reading) error

func (f ReadingSinkFunc) PutReading(r Reading) error {
	return f(r)
}

// WindowSink receives accelerometer windows as they are collected.
type WindowSink interface {
	PutWindow(tag tagmem.TagID, w adxl.Window) error
}
