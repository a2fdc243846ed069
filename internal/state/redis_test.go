//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"github.com/stretchr/testify/require"
	"testing"
)

const (
	testRedisHost = "localhost"
	testRedisPort = 6379
	testRedisKey  = "bap-sensor.test"
)

func requireRedis(t *testing.T) {
	t.Helper()
	client := newRedisClient(testRedisHost, testRedisPort)
	defer client.Close()
	if err := client.Ping().Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
}

func TestNewRedisState(t *testing.T) {
	state := NewRedisState(testRedisHost, testRedisPort, testRedisKey).(*redisState)
	require.NotNil(t, state.client)
	require.Equal(t, testRedisKey, state.key)
	require.NotNil(t, state.Tags)
}

func TestRedisStateSaveAndLoad(t *testing.T) {
	requireRedis(t)
	client := newRedisClient(testRedisHost, testRedisPort)
	defer client.Del(testRedisKey)

	client.Del(testRedisKey)
	s, err := OpenRedisState(testRedisHost, testRedisPort, testRedisKey)
	require.NoError(t, err)

	s.Update(testEPC, func(rec *TagRecord) { rec.Mode = "pseudobap" })
	require.NoError(t, s.Save())

	loaded, err := NewStateFromRedis(testRedisHost, testRedisPort, testRedisKey)
	require.NoError(t, err)
	rec, ok := loaded.Get(testEPC)
	require.True(t, ok)
	require.Equal(t, "pseudobap", rec.Mode)
}

func TestNewStateFromRedisCorruptKey(t *testing.T) {
	requireRedis(t)
	client := newRedisClient(testRedisHost, testRedisPort)
	defer client.Del(testRedisKey)

	client.Set(testRedisKey, []byte(`"garbage`), 0)
	state, err := NewStateFromRedis(testRedisHost, testRedisPort, testRedisKey)
	require.Error(t, err)
	require.Nil(t, state)
}
