//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/adxl"
	"io/ioutil"
	"os"
	"time"
)

type Config struct {
	DeviceService DeviceServiceConfig `toml:"device_service"`
	Tag           TagConfig
	Campaign      CampaignConfig
	OpenTSDB      OpenTSDBConfig
	State         StateConfig
}

type DeviceServiceConfig struct {
	URL    string
	Device string
}

type TagConfig struct {
	EPC string
	TID string
}

type CampaignConfig struct {
	DischargeSeconds       int `toml:"discharge_seconds"`
	TempLogIntervalSeconds int `toml:"templog_interval_seconds"`
	VibrationWindowMillis  int `toml:"vibration_window_millis"`
	// CSVFile receives temperature log rows when set.
	CSVFile string `toml:"csv_file"`
}

// OpenTSDBConfig enables export when Host is set.
type OpenTSDBConfig struct {
	Host          string
	Port          int
	MetricsPrefix string `toml:"metrics_prefix"`
}

// StateConfig records results to the tag state when Backend is set.
type StateConfig struct {
	Backend   string
	Filename  string
	RedisHost string `toml:"redis_host"`
	RedisPort int    `toml:"redis_port"`
	RedisKey  string `toml:"redis_key"`
}

func NewConfig() *Config {
	return &Config{
		DeviceService: DeviceServiceConfig{URL: "http://localhost:51992"},
		Campaign: CampaignConfig{
			DischargeSeconds:       20,
			TempLogIntervalSeconds: 5,
			VibrationWindowMillis:  int(adxl.DefaultWindow / time.Millisecond),
		},
		OpenTSDB: OpenTSDBConfig{Port: 4242, MetricsPrefix: "bap"},
		State:    StateConfig{RedisPort: 6379},
	}
}

// ReadConfigFile decodes filename over the defaults.
// A missing file is not an error; the defaults are returned.
func ReadConfigFile(filename string) (*Config, error) {
	config := NewConfig()
	tomlData, err := ioutil.ReadFile(filename)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	if _, err := toml.Decode(string(tomlData), config); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}
	return config, nil
}

func (c *Config) Discharge() time.Duration {
	return time.Duration(c.Campaign.DischargeSeconds) * time.Second
}

func (c *Config) TempLogInterval() time.Duration {
	return time.Duration(c.Campaign.TempLogIntervalSeconds) * time.Second
}

func (c *Config) VibrationWindow() time.Duration {
	return time.Duration(c.Campaign.VibrationWindowMillis) * time.Millisecond
}
