//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package tsdb exports sensor readings to OpenTSDB.
package tsdb

import (
	"fmt"
	"github.com/bluebreezecf/opentsdb-goclient/client"
	"github.com/bluebreezecf/opentsdb-goclient/config"
	"github.com/pkg/errors"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/adxl"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/session"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/tagmem"
)

// TSDB stores readings in a time series database.
type TSDB interface {
	session.ReadingSink
	session.WindowSink
}

type OpenTSDB struct {
	client client.Client
	prefix string
}

func NewOpenTSDBClient(host string, port int, metricPrefix string) (*OpenTSDB, error) {
	cfg := config.OpenTSDBConfig{OpentsdbHost: fmt.Sprintf("%s:%d", host, port)}
	c, err := client.NewClient(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create OpenTSDB client")
	}
	return &OpenTSDB{
		client: c,
		prefix: metricPrefix,
	}, nil
}

func (c *OpenTSDB) tags(tag tagmem.TagID) map[string]string {
	tags := map[string]string{"epc": tag.EPC}
	if tag.TID != "" {
		tags["tid"] = tag.TID
	}
	return tags
}

func (c *OpenTSDB) prepareReading(r session.Reading) client.DataPoint {
	return client.DataPoint{
		Metric:    c.prefix + ".temperature",
		Timestamp: session.UnixMilli(r.Time),
		Value:     r.Celsius,
		Tags:      c.tags(r.Tag),
	}
}

// PutReading stores a temperature, in degrees Celsius.
func (c *OpenTSDB) PutReading(r session.Reading) error {
	_, err := c.client.Put([]client.DataPoint{c.prepareReading(r)}, "summary")
	return errors.Wrap(err, "failed to put temperature")
}

func (c *OpenTSDB) prepareWindow(tag tagmem.TagID, w adxl.Window) []client.DataPoint {
	points := make([]client.DataPoint, 0, len(w.Samples)*3)
	for _, s := range w.Samples {
		ts := session.UnixMilli(s.Time)
		for axis, v := range map[string]int16{"x": s.X, "y": s.Y, "z": s.Z} {
			tags := c.tags(tag)
			tags["axis"] = axis
			points = append(points, client.DataPoint{
				Metric:    c.prefix + ".acceleration",
				Timestamp: ts,
				Value:     v,
				Tags:      tags,
			})
		}
	}
	return points
}

// PutWindow stores each axis of each sample, in raw counts.
func (c *OpenTSDB) PutWindow(tag tagmem.TagID, w adxl.Window) error {
	points := c.prepareWindow(tag, w)
	if len(points) == 0 {
		return nil
	}
	_, err := c.client.Put(points, "summary")
	return errors.Wrap(err, "failed to put acceleration")
}
