//
// Copyright (C) 2020 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package llrp

import (
	"bytes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
)

func TestReaderSetMembership(t *testing.T) {
	rs := NewReaderSet()
	require.Empty(t, rs.Names())

	rs.AddReader("b")
	rs.AddReader("a")
	rs.AddReader("b")
	require.Equal(t, []string{"a", "b"}, rs.Names())
	require.True(t, rs.Has("a"))

	buf := &bytes.Buffer{}
	require.NoError(t, rs.WriteReaders(buf))
	require.JSONEq(t, `{"Readers":["a","b"]}`, buf.String())

	rs.RemoveReader("a")
	rs.RemoveReader("not there")
	require.Equal(t, []string{"b"}, rs.Names())
	require.False(t, rs.Has("a"))
}

func TestReaderSetAcquire(t *testing.T) {
	rs := NewReaderSet()
	_, err := rs.Acquire("r1")
	require.True(t, errors.Is(err, ErrUnknownReader))

	rs.AddReader("r1")
	rs.AddReader("r2")

	release, err := rs.Acquire("r1")
	require.NoError(t, err)

	_, err = rs.Acquire("r1")
	require.True(t, errors.Is(err, ErrReaderBusy))

	release2, err := rs.Acquire("r2")
	require.NoError(t, err)
	release2()

	release()
	release()
	release, err = rs.Acquire("r1")
	require.NoError(t, err)
	release()
}

func TestReaderSetReconnectWhileHeld(t *testing.T) {
	rs := NewReaderSet()
	rs.AddReader("r1")

	release, err := rs.Acquire("r1")
	require.NoError(t, err)

	// the reader drops and reconnects during the session
	rs.RemoveReader("r1")
	_, err = rs.Acquire("r1")
	require.True(t, errors.Is(err, ErrUnknownReader))
	rs.AddReader("r1")

	_, err = rs.Acquire("r1")
	require.True(t, errors.Is(err, ErrReaderBusy))

	release()
	release, err = rs.Acquire("r1")
	require.NoError(t, err)
	release()

	// releasing after removal leaves the reader unknown
	release, err = rs.Acquire("r1")
	require.NoError(t, err)
	rs.RemoveReader("r1")
	release()
	require.False(t, rs.Has("r1"))
	rs.AddReader("r1")
	release, err = rs.Acquire("r1")
	require.NoError(t, err)
	release()
}

func TestReaderSetAcquireConcurrent(t *testing.T) {
	rs := NewReaderSet()
	rs.AddReader("r1")

	const n = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0
	releases := make([]func(), 0, n)

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			release, err := rs.Acquire("r1")
			if err != nil {
				return
			}
			mu.Lock()
			acquired++
			releases = append(releases, release)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 1, acquired)
	releases[0]()
}

func TestMultiErr(t *testing.T) {
	me := MultiErr{errors.New("first"), errors.New("second")}
	require.Equal(t, "first; second", me.Error())
}
