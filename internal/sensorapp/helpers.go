//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package sensorapp

import (
	"github.com/edgexfoundry/go-mod-bootstrap/bootstrap/flags"
	"github.com/edgexfoundry/go-mod-configuration/configuration"
	"github.com/edgexfoundry/go-mod-configuration/pkg/types"
	"github.com/edgexfoundry/go-mod-core-contracts/clients/logger"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
)

const (
	baseConsulPath     = "edgex/appservices/1.0/"
	appSettingsSection = "ApplicationSettings"
)

// getConfigClient returns a configuration client based on the command line args,
// or a default one if those lack a config provider URL.
func getConfigClient() (configuration.Client, error) {
	sdkFlags := flags.New()
	sdkFlags.Parse(os.Args[1:])
	cpUrl, err := url.Parse(sdkFlags.ConfigProviderUrl())
	if err != nil {
		return nil, err
	}

	cpPort := 8500
	port := cpUrl.Port()
	if port != "" {
		cpPort, err = strconv.Atoi(port)
		if err != nil {
			return nil, errors.Wrap(err, "bad config port")
		}
	}

	configClient, err := configuration.NewConfigurationClient(types.ServiceConfig{
		Host:     cpUrl.Hostname(),
		Port:     cpPort,
		BasePath: baseConsulPath + serviceKey,
		Type:     strings.Split(cpUrl.Scheme, ".")[0],
	})

	return configClient, errors.Wrap(err, "failed to get config client")
}

// syncSettings reconciles the local application settings with the configuration provider.
//
// If the provider has no configuration for this service yet,
// the local settings are pushed to it and returned as-is.
// Otherwise, any key the provider holds overrides the local value.
// If the provider isn't reachable, the local settings are returned unchanged.
func syncSettings(cc configuration.Client, lc logger.LoggingClient, local map[string]string) (map[string]string, error) {
	if cc == nil || !cc.IsAlive() {
		lc.Warn("Configuration provider is unavailable; using local application settings.")
		return local, nil
	}

	exists, err := cc.HasConfiguration()
	if err != nil {
		return nil, errors.Wrap(err, "failed to check for existing configuration")
	}

	if !exists {
		section := make(map[string]interface{}, len(local))
		for k, v := range local {
			section[k] = v
		}
		tree, err := toml.TreeFromMap(map[string]interface{}{appSettingsSection: section})
		if err != nil {
			return nil, errors.Wrap(err, "failed to build configuration tree")
		}
		if err := cc.PutConfigurationToml(tree, false); err != nil {
			return nil, errors.Wrap(err, "failed to push application settings")
		}
		lc.Info("Pushed local application settings to the configuration provider.")
		return local, nil
	}

	keys := make([]string, 0, len(local))
	for k := range local {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	merged := make(map[string]string, len(local))
	for _, k := range keys {
		merged[k] = local[k]

		path := appSettingsSection + "/" + k
		ok, err := cc.ConfigurationValueExists(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to check for %s", path)
		}
		if !ok {
			continue
		}

		v, err := cc.GetConfigurationValue(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get %s", path)
		}
		if string(v) != local[k] {
			lc.Debug("Application setting overridden by configuration provider.", "key", k)
		}
		merged[k] = string(v)
	}

	return merged, nil
}
