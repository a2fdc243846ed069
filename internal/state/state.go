//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package state remembers what the service last did to each tag,
// so it survives restarts.
package state

import (
	"encoding/json"
	"github.com/pkg/errors"
	"io/ioutil"
	"os"
	"sync"
	"time"
)

// TagRecord is what is known about one tag.
type TagRecord struct {
	EPC string
	TID string
	// Mode is the name of the last power mode successfully configured.
	Mode        string
	ModeUpdated time.Time

	CalibrationChecked  time.Time
	CalibrationRepaired bool
	Trim                float32

	// PeakRSSI holds the peak signal strength of the latest vibration windows,
	// oldest first, and MeanPeakRSSI their mean.
	PeakRSSI     []float64 `json:",omitempty"`
	MeanPeakRSSI float64   `json:",omitempty"`
}

// SignalHistory is the number of windows kept in TagRecord.PeakRSSI.
const SignalHistory = 10

// AddPeakRSSI records the peak signal strength of a new window,
// dropping the oldest once SignalHistory windows are held.
func (rec *TagRecord) AddPeakRSSI(rssi float64) {
	keep := rec.PeakRSSI
	if len(keep) >= SignalHistory {
		keep = keep[len(keep)-SignalHistory+1:]
	}

	// records handed out by Get share the old backing array
	hist := make([]float64, 0, len(keep)+1)
	hist = append(hist, keep...)
	hist = append(hist, rssi)

	var total float64
	for _, v := range hist {
		total += v
	}
	rec.PeakRSSI = hist
	rec.MeanPeakRSSI = total / float64(len(hist))
}

type State interface {
	Get(epc string) (TagRecord, bool)
	Update(epc string, f func(rec *TagRecord))
	Save() error
}

// records is the part of the state that is persisted.
type records struct {
	mu   sync.RWMutex
	Tags map[string]TagRecord
}

func newRecords() *records {
	return &records{Tags: make(map[string]TagRecord)}
}

func (r *records) Get(epc string) (TagRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.Tags[epc]
	return rec, ok
}

// Update applies f to the record for epc, creating it if needed.
func (r *records) Update(epc string, f func(rec *TagRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.Tags[epc]
	rec.EPC = epc
	f(&rec)
	r.Tags[epc] = rec
}

func (r *records) marshal() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return json.Marshal(r)
}

func (r *records) unmarshal(data []byte) error {
	if err := json.Unmarshal(data, r); err != nil {
		return err
	}
	if r.Tags == nil {
		r.Tags = make(map[string]TagRecord)
	}
	return nil
}

type fileState struct {
	*records
	Filename string
}

func NewFileState(filename string) State {
	return &fileState{
		records:  newRecords(),
		Filename: filename,
	}
}

// NewStateFromFile reads state from filename.
func NewStateFromFile(filename string) (State, error) {
	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	state := &fileState{records: newRecords(), Filename: filename}
	if err := state.unmarshal(data); err != nil {
		return nil, errors.Wrapf(err, "failed to parse state file %s", filename)
	}
	return state, nil
}

// OpenFileState reads state from filename, or starts empty if it doesn't exist yet.
func OpenFileState(filename string) (State, error) {
	s, err := NewStateFromFile(filename)
	if os.IsNotExist(err) {
		return NewFileState(filename), nil
	}
	return s, err
}

// Save overwrites the state file with the current state.
func (s *fileState) Save() error {
	data, err := s.marshal()
	if err != nil {
		return errors.Wrap(err, "failed to marshal state")
	}
	return ioutil.WriteFile(s.Filename, data, 0600)
}
