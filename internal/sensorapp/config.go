//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package sensorapp

import (
	"fmt"
	"github.com/pkg/errors"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/adxl"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/llrp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	StateBackendFile  = "file"
	StateBackendRedis = "redis"
)

var ErrUnexpectedConfigItems = errors.New("unexpected config items")

// ApplicationSettings are the custom settings
// read from the ApplicationSettings section of the service configuration.
type ApplicationSettings struct {
	DeviceServiceName  string
	DeviceServiceURL   string
	MetadataServiceURL string

	DischargeSeconds       int
	TempLogIntervalSeconds int
	VibrationWindowMillis  int
	ReflectedPowerKHz      int

	StateBackend string
	StateFile    string
	RedisHost    string
	RedisPort    int
	RedisKey     string

	// OpenTSDB export is disabled when OpenTSDBHost is empty.
	OpenTSDBHost  string
	OpenTSDBPort  int
	MetricsPrefix string
}

func NewApplicationSettings() ApplicationSettings {
	return ApplicationSettings{
		DeviceServiceName:      "edgex-device-rfid-llrp",
		DeviceServiceURL:       "http://localhost:51992",
		MetadataServiceURL:     "http://localhost:48081",
		DischargeSeconds:       20,
		TempLogIntervalSeconds: 5,
		VibrationWindowMillis:  int(adxl.DefaultWindow / time.Millisecond),
		ReflectedPowerKHz:      915250,
		StateBackend:           StateBackendFile,
		StateFile:              "cache/tags.json",
		RedisHost:              "localhost",
		RedisPort:              6379,
		RedisKey:               "bap-sensor",
		OpenTSDBPort:           4242,
		MetricsPrefix:          "bap",
	}
}

func (as ApplicationSettings) Discharge() time.Duration {
	return time.Duration(as.DischargeSeconds) * time.Second
}

func (as ApplicationSettings) TempLogInterval() time.Duration {
	return time.Duration(as.TempLogIntervalSeconds) * time.Second
}

func (as ApplicationSettings) VibrationWindow() time.Duration {
	return time.Duration(as.VibrationWindowMillis) * time.Millisecond
}

// Validate returns an error if any of the settings are out of range.
func (as ApplicationSettings) Validate() error {
	var errs llrp.MultiErr
	if as.DischargeSeconds <= 0 {
		errs = append(errs, errors.Errorf("DischargeSeconds must be > 0, not %d", as.DischargeSeconds))
	}
	if as.TempLogIntervalSeconds <= 0 {
		errs = append(errs, errors.Errorf("TempLogIntervalSeconds must be > 0, not %d", as.TempLogIntervalSeconds))
	}
	if as.VibrationWindowMillis <= 0 {
		errs = append(errs, errors.Errorf("VibrationWindowMillis must be > 0, not %d", as.VibrationWindowMillis))
	}
	if as.ReflectedPowerKHz <= 0 {
		errs = append(errs, errors.Errorf("ReflectedPowerKHz must be > 0, not %d", as.ReflectedPowerKHz))
	}

	switch as.StateBackend {
	case StateBackendFile:
		if as.StateFile == "" {
			errs = append(errs, errors.New("StateFile is required by the file state backend"))
		}
	case StateBackendRedis:
		if as.RedisHost == "" || as.RedisKey == "" {
			errs = append(errs, errors.New("RedisHost and RedisKey are required by the redis state backend"))
		}
	default:
		errs = append(errs, errors.Errorf("unknown StateBackend %q", as.StateBackend))
	}

	if as.OpenTSDBHost != "" && as.MetricsPrefix == "" {
		errs = append(errs, errors.New("MetricsPrefix is required when OpenTSDBHost is set"))
	}

	if errs != nil {
		return errs
	}
	return nil
}

// ParseApplicationSettings fills in the defaults with any matching values in configMap.
//
// Unknown keys are skipped, and if any are found the returned error wraps ErrUnexpectedConfigItems;
// in that case, the returned settings are still valid.
// Any other error means a value couldn't be parsed, or the result failed validation.
func ParseApplicationSettings(configMap map[string]string) (ApplicationSettings, error) {
	as := NewApplicationSettings()

	ints := map[string]*int{
		"DischargeSeconds":       &as.DischargeSeconds,
		"TempLogIntervalSeconds": &as.TempLogIntervalSeconds,
		"VibrationWindowMillis":  &as.VibrationWindowMillis,
		"ReflectedPowerKHz":      &as.ReflectedPowerKHz,
		"RedisPort":              &as.RedisPort,
		"OpenTSDBPort":           &as.OpenTSDBPort,
	}
	strs := map[string]*string{
		"DeviceServiceName":  &as.DeviceServiceName,
		"DeviceServiceURL":   &as.DeviceServiceURL,
		"MetadataServiceURL": &as.MetadataServiceURL,
		"StateBackend":       &as.StateBackend,
		"StateFile":          &as.StateFile,
		"RedisHost":          &as.RedisHost,
		"RedisKey":           &as.RedisKey,
		"OpenTSDBHost":       &as.OpenTSDBHost,
		"MetricsPrefix":      &as.MetricsPrefix,
	}

	var unexpected []string
	for k, v := range configMap {
		v = strings.TrimSpace(v)

		if p, ok := strs[k]; ok {
			*p = v
			continue
		}

		p, ok := ints[k]
		if !ok {
			unexpected = append(unexpected, k)
			continue
		}

		n, err := strconv.Atoi(v)
		if err != nil {
			return as, errors.Wrapf(err, "invalid value for %s", k)
		}
		*p = n
	}

	as.StateBackend = strings.ToLower(as.StateBackend)
	if err := as.Validate(); err != nil {
		return as, errors.Wrap(err, "invalid application settings")
	}

	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return as, errors.Wrap(ErrUnexpectedConfigItems,
			fmt.Sprintf("config items: %s", strings.Join(unexpected, ", ")))
	}
	return as, nil
}
