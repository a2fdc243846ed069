//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"github.com/stretchr/testify/require"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testEPC = "E2801191A5030060C1A4C38E"

func tempStateFile(t *testing.T) (string, func()) {
	t.Helper()
	dir, err := ioutil.TempDir("", "bap-state")
	require.NoError(t, err)
	return filepath.Join(dir, "state.json"), func() { _ = os.RemoveAll(dir) }
}

func TestFileStateUpdate(t *testing.T) {
	s := NewFileState("unused.json")
	_, ok := s.Get(testEPC)
	require.False(t, ok)

	now := time.Now()
	s.Update(testEPC, func(rec *TagRecord) {
		rec.Mode = "bap"
		rec.ModeUpdated = now
	})
	s.Update(testEPC, func(rec *TagRecord) {
		rec.Trim = 1.25
	})

	rec, ok := s.Get(testEPC)
	require.True(t, ok)
	require.Equal(t, testEPC, rec.EPC)
	require.Equal(t, "bap", rec.Mode)
	require.Equal(t, float32(1.25), rec.Trim)
}

func TestFileStateSaveAndLoad(t *testing.T) {
	filename, cleanup := tempStateFile(t)
	defer cleanup()

	s, err := OpenFileState(filename)
	require.NoError(t, err)

	checked := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	s.Update(testEPC, func(rec *TagRecord) {
		rec.TID = "E2801191200078A1"
		rec.CalibrationChecked = checked
		rec.CalibrationRepaired = true
	})
	require.NoError(t, s.Save())

	loaded, err := NewStateFromFile(filename)
	require.NoError(t, err)
	rec, ok := loaded.Get(testEPC)
	require.True(t, ok)
	require.True(t, rec.CalibrationRepaired)
	require.True(t, checked.Equal(rec.CalibrationChecked))

	reopened, err := OpenFileState(filename)
	require.NoError(t, err)
	_, ok = reopened.Get(testEPC)
	require.True(t, ok)
}

func TestFileStateCorrupt(t *testing.T) {
	filename, cleanup := tempStateFile(t)
	defer cleanup()

	require.NoError(t, ioutil.WriteFile(filename, []byte(`"garbage`), 0600))
	s, err := NewStateFromFile(filename)
	require.Error(t, err)
	require.Nil(t, s)

	_, err = OpenFileState(filename)
	require.Error(t, err)

	_, err = NewStateFromFile(filename + ".missing")
	require.True(t, os.IsNotExist(err))
}

func TestFileStateEmptyObject(t *testing.T) {
	filename, cleanup := tempStateFile(t)
	defer cleanup()

	require.NoError(t, ioutil.WriteFile(filename, []byte(`{}`), 0600))
	s, err := NewStateFromFile(filename)
	require.NoError(t, err)
	s.Update(testEPC, func(rec *TagRecord) { rec.Mode = "passive" })
}

func TestAddPeakRSSI(t *testing.T) {
	var rec TagRecord
	rec.AddPeakRSSI(-50)
	rec.AddPeakRSSI(-60)
	require.Equal(t, []float64{-50, -60}, rec.PeakRSSI)
	require.Equal(t, -55.0, rec.MeanPeakRSSI)

	for i := 0; i < SignalHistory; i++ {
		rec.AddPeakRSSI(-40)
	}
	require.Len(t, rec.PeakRSSI, SignalHistory)
	require.Equal(t, -40.0, rec.MeanPeakRSSI)

	rec.AddPeakRSSI(-70)
	require.Len(t, rec.PeakRSSI, SignalHistory)
	require.Equal(t, -70.0, rec.PeakRSSI[SignalHistory-1])
	require.Equal(t, -43.0, rec.MeanPeakRSSI)
}

func TestAddPeakRSSIDoesNotAlias(t *testing.T) {
	s := NewFileState("unused.json")
	for i := 0; i < SignalHistory; i++ {
		s.Update(testEPC, func(rec *TagRecord) { rec.AddPeakRSSI(-50) })
	}

	before, ok := s.Get(testEPC)
	require.True(t, ok)
	s.Update(testEPC, func(rec *TagRecord) { rec.AddPeakRSSI(-80) })

	require.Equal(t, -50.0, before.PeakRSSI[SignalHistory-1])
	after, _ := s.Get(testEPC)
	require.Equal(t, -80.0, after.PeakRSSI[SignalHistory-1])
}
