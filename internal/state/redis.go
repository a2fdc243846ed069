//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"fmt"
	"github.com/pkg/errors"
	"gopkg.in/redis.v5"
)

type redisState struct {
	*records
	client *redis.Client
	key    string
}

func newRedisClient(host string, port int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%d", host, port)})
}

func NewRedisState(host string, port int, key string) State {
	return &redisState{
		records: newRecords(),
		client:  newRedisClient(host, port),
		key:     key,
	}
}

// NewStateFromRedis reads state stored under key.
func NewStateFromRedis(host string, port int, key string) (State, error) {
	client := newRedisClient(host, port)
	data, err := client.Get(key).Bytes()
	if err != nil {
		return nil, err
	}

	state := &redisState{records: newRecords(), client: client, key: key}
	if err := state.unmarshal(data); err != nil {
		return nil, errors.Wrapf(err, "failed to parse state at redis key %s", key)
	}
	return state, nil
}

// OpenRedisState reads state stored under key, or starts empty if the key doesn't exist.
// It fails if Redis can't be reached.
func OpenRedisState(host string, port int, key string) (State, error) {
	s, err := NewStateFromRedis(host, port, key)
	if err == redis.Nil {
		return NewRedisState(host, port, key), nil
	}
	return s, err
}

func (s *redisState) Save() error {
	data, err := s.marshal()
	if err != nil {
		return errors.Wrap(err, "failed to marshal state")
	}
	return s.client.Set(s.key, data, 0).Err()
}
