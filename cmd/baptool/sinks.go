//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/csv"
	"github.com/pkg/errors"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/llrp"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/session"
	"io"
	"os"
	"strconv"
	"time"
)

var csvHeader = []string{"EPC", "TID", "Timestamp", "Temperature (Celsius)"}

// csvSink writes one row per reading, in the columns of csvHeader.
type csvSink struct {
	w *csv.Writer
}

func newCSVSink(w io.Writer) *csvSink {
	return &csvSink{w: csv.NewWriter(w)}
}

// openCSVLog opens the named file for appending,
// writing the header row first if the file is empty.
// The caller must close the returned file.
func openCSVLog(name string) (*os.File, *csvSink, error) {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open CSV file")
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrap(err, "failed to stat CSV file")
	}

	sink := newCSVSink(f)
	if info.Size() == 0 {
		if err := sink.write(csvHeader); err != nil {
			f.Close()
			return nil, nil, err
		}
	}
	return f, sink, nil
}

func (s *csvSink) PutReading(r session.Reading) error {
	return s.write([]string{
		r.Tag.EPC,
		r.Tag.TID,
		r.Time.UTC().Format(time.RFC3339Nano),
		strconv.FormatFloat(float64(r.Celsius), 'f', 2, 32),
	})
}

func (s *csvSink) write(row []string) error {
	if err := s.w.Write(row); err != nil {
		return errors.Wrap(err, "failed to write CSV row")
	}
	s.w.Flush()
	return errors.Wrap(s.w.Error(), "failed to flush CSV row")
}

// multiSink hands each reading to every sink, even if some fail.
type multiSink []session.ReadingSink

func (ms multiSink) PutReading(r session.Reading) error {
	var errs llrp.MultiErr
	for _, s := range ms {
		if err := s.PutReading(r); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
