//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package sensorapp

import (
	"fmt"
	"github.com/pelletier/go-toml"
)

// MockConfigClient is an in-memory configuration.Client for the settings sync tests.
// Values live in a flat map keyed by their Consul-style path,
// so a test can seed stored settings, spoof an unavailable provider,
// or make the next call fail, and then inspect what was pushed.
type MockConfigClient struct {
	// alive is returned by IsAlive
	alive bool
	// nextErr holds an error that is to be returned by the next interface method call. this value
	// is cleared every use and should be set before calling an interface method.
	nextErr error

	// tree holds the data provided to PutConfigurationToml method
	tree *toml.Tree
	// valueMap holds the configuration values, keyed by path
	valueMap map[string][]byte
}

func NewMockConfigClient() *MockConfigClient {
	return &MockConfigClient{
		alive:    true,
		valueMap: make(map[string][]byte),
	}
}

func (m *MockConfigClient) takeErr() error {
	err := m.nextErr
	m.nextErr = nil
	return err
}

// Checks to see if the Configuration service contains the service's configuration.
func (m *MockConfigClient) HasConfiguration() (bool, error) {
	if err := m.takeErr(); err != nil {
		return false, err
	}
	return len(m.valueMap) > 0, nil
}

// Puts a full toml configuration into the Configuration service
func (m *MockConfigClient) PutConfigurationToml(configuration *toml.Tree, overwrite bool) error {
	if err := m.takeErr(); err != nil {
		return err
	}

	m.tree = configuration
	if configuration.Has(appSettingsSection) {
		val, ok := configuration.Get(appSettingsSection).(*toml.Tree)
		if !ok {
			panic("unable to convert config to toml.Tree")
		}
		for _, k := range val.Keys() {
			path := appSettingsSection + "/" + k
			if _, exists := m.valueMap[path]; exists && !overwrite {
				continue
			}
			m.valueMap[path] = []byte(fmt.Sprintf("%v", val.Get(k)))
		}
	}
	return nil
}

// Puts a full configuration struct into the Configuration service
// Not currently needed, so not implemented
func (m *MockConfigClient) PutConfiguration(configStruct interface{}, overwrite bool) error {
	panic("Not implemented.")
}

// Gets the full configuration from Consul into the target configuration struct.
// Not currently needed, so not implemented
func (m *MockConfigClient) GetConfiguration(configStruct interface{}) (interface{}, error) {
	panic("Not implemented.")
}

// Sets up a Consul watch for the target key and send back updates on the update channel.
// Not currently needed, so not implemented
func (m *MockConfigClient) WatchForChanges(updateChannel chan<- interface{}, errorChannel chan<- error, configuration interface{}, waitKey string) {
	panic("Not implemented.")
}

// Simply checks if Configuration service is up and running at the configured URL
func (m *MockConfigClient) IsAlive() bool {
	return m.alive
}

// Checks if a configuration value exists in the Configuration service
func (m *MockConfigClient) ConfigurationValueExists(name string) (bool, error) {
	if err := m.takeErr(); err != nil {
		return false, err
	}
	_, ok := m.valueMap[name]
	return ok, nil
}

// Gets a specific configuration value from the Configuration service
func (m *MockConfigClient) GetConfigurationValue(name string) ([]byte, error) {
	if err := m.takeErr(); err != nil {
		return nil, err
	}
	return m.valueMap[name], nil
}

// Puts a specific configuration value into the Configuration service
func (m *MockConfigClient) PutConfigurationValue(name string, value []byte) error {
	if err := m.takeErr(); err != nil {
		return err
	}
	m.valueMap[name] = value
	return nil
}
