//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/session"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/tagmem"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var testReading = session.Reading{
	Tag:     tagmem.TagID{EPC: "E2801191A5030060C1A4C38E", TID: "E2801191200078A1"},
	Time:    time.Date(2021, 3, 31, 14, 0, 0, 0, time.UTC),
	Celsius: 23.5,
	Raw:     0x005E,
}

func TestCSVSink(t *testing.T) {
	buf := &bytes.Buffer{}
	sink := newCSVSink(buf)

	require.NoError(t, sink.PutReading(testReading))
	require.Equal(t,
		"E2801191A5030060C1A4C38E,E2801191200078A1,2021-03-31T14:00:00Z,23.50\n",
		buf.String())

	r := testReading
	r.Tag.TID = ""
	r.Celsius = -4.25
	require.NoError(t, sink.PutReading(r))
	require.Contains(t, buf.String(), "E2801191A5030060C1A4C38E,,2021-03-31T14:00:00Z,-4.25\n")
}

func TestOpenCSVLogHeader(t *testing.T) {
	dir, err := ioutil.TempDir("", "templog")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	const header = "EPC,TID,Timestamp,Temperature (Celsius)\n"
	const row = "E2801191A5030060C1A4C38E,E2801191200078A1,2021-03-31T14:00:00Z,23.50\n"

	tests := []struct {
		name     string
		existing string
		expected string
	}{
		{"new file", "", header + row},
		{"empty file", "-", header + row},
		{"existing rows", header + row, header + row + row},
		{"foreign content", "x\n", "x\n" + row},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			name := filepath.Join(dir, filepath.Base(t.Name())+".csv")
			switch testCase.existing {
			case "":
			case "-":
				require.NoError(t, ioutil.WriteFile(name, nil, 0644))
			default:
				require.NoError(t, ioutil.WriteFile(name, []byte(testCase.existing), 0644))
			}

			f, sink, err := openCSVLog(name)
			require.NoError(t, err)
			require.NoError(t, sink.PutReading(testReading))
			require.NoError(t, f.Close())

			got, err := ioutil.ReadFile(name)
			require.NoError(t, err)
			require.Equal(t, testCase.expected, string(got))
		})
	}

	_, _, err = openCSVLog(filepath.Join(dir, "missing", "log.csv"))
	require.Error(t, err)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestCSVSinkError(t *testing.T) {
	sink := newCSVSink(failingWriter{})
	err := sink.PutReading(testReading)
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk full")
}

func TestMultiSink(t *testing.T) {
	var got []session.Reading
	collect := session.ReadingSinkFunc(func(r session.Reading) error {
		got = append(got, r)
		return nil
	})
	fail := session.ReadingSinkFunc(func(r session.Reading) error {
		return errors.New("unavailable")
	})

	require.NoError(t, multiSink{collect, collect}.PutReading(testReading))
	require.Len(t, got, 2)

	// a failing sink doesn't stop the others
	got = nil
	err := multiSink{fail, collect, fail}.PutReading(testReading)
	require.Error(t, err)
	require.Equal(t, "unavailable; unavailable", err.Error())
	require.Len(t, got, 1)

	require.NoError(t, multiSink{}.PutReading(testReading))
}
