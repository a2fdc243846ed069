//
// Copyright (C) 2020 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package llrp

import (
	"encoding/json"
	"github.com/pkg/errors"
	"io"
	"sort"
	"strings"
	"sync"
)

var (
	ErrUnknownReader = errors.New("unknown reader")
	ErrReaderBusy    = errors.New("reader is busy with another tag session")
)

// A ReaderSet tracks the readers known to the service,
// and which of them currently has a tag session in progress.
//
// A reader has a single air interface, so at most one session
// may use it at a time.
type ReaderSet struct {
	mu      sync.RWMutex
	readers map[string]struct{}
	// busy holds readers with a session in progress.
	// Membership changes don't touch it, so a reader that reconnects
	// mid-session stays claimed until the session releases it.
	busy map[string]struct{}
}

func NewReaderSet() *ReaderSet {
	return &ReaderSet{
		readers: map[string]struct{}{},
		busy:    map[string]struct{}{},
	}
}

// AddReader adds the named reader, if not already present.
func (rs *ReaderSet) AddReader(name string) {
	rs.mu.Lock()
	rs.readers[name] = struct{}{}
	rs.mu.Unlock()
}

// RemoveReader removes the named reader from the set, if present.
// A session already holding it is unaffected.
func (rs *ReaderSet) RemoveReader(name string) {
	rs.mu.Lock()
	delete(rs.readers, name)
	rs.mu.Unlock()
}

// Has reports whether the named reader is in the set.
func (rs *ReaderSet) Has(name string) bool {
	rs.mu.RLock()
	_, ok := rs.readers[name]
	rs.mu.RUnlock()
	return ok
}

// Names returns the readers in the set, sorted.
func (rs *ReaderSet) Names() []string {
	rs.mu.RLock()
	names := make([]string, 0, len(rs.readers))
	for r := range rs.readers {
		names = append(names, r)
	}
	rs.mu.RUnlock()

	sort.Strings(names)
	return names
}

// WriteReaders writes to w a JSON-formatted list of readers in this set.
func (rs *ReaderSet) WriteReaders(w io.Writer) error {
	s := struct{ Readers []string }{Readers: rs.Names()}
	return json.NewEncoder(w).Encode(s)
}

// Acquire claims the named reader for a tag session.
// The caller must call the returned release function when the session ends.
//
// It fails with ErrUnknownReader if the reader isn't in the set,
// or ErrReaderBusy if another session already holds it.
func (rs *ReaderSet) Acquire(name string) (release func(), err error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if _, ok := rs.readers[name]; !ok {
		return nil, errors.Wrapf(ErrUnknownReader, "%q", name)
	}
	if _, busy := rs.busy[name]; busy {
		return nil, errors.Wrapf(ErrReaderBusy, "%q", name)
	}
	rs.busy[name] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			rs.mu.Lock()
			delete(rs.busy, name)
			rs.mu.Unlock()
		})
	}, nil
}

// MultiErr tracks a list of errors collected
// when an operation is applied to multiple things.
type MultiErr []error

// Error implements the error interface for MultiErr
// by returning a single string listing all the collected errors,
// separated by a semicolon and a space ("; ").
func (me MultiErr) Error() string {
	strs := make([]string, len(me))
	for i, s := range me {
		strs[i] = s.Error()
	}

	return strings.Join(strs, "; ")
}
