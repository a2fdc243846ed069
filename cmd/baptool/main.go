//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Command baptool runs one-off operations against a single BAP sensor tag
// through the RFID LLRP device service.
package main

import (
	"github.com/edgexfoundry/go-mod-core-contracts/clients/logger"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/llrp"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/session"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/state"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/tagmem"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/tsdb"
	"net/http"
	"net/url"
	"os"
	"strings"
)

const Version = "0.1.0"

// tool is everything a command needs to work with the configured tag.
type tool struct {
	cfg  *Config
	lc   logger.LoggingClient
	sess *session.Session
	// state and db are nil unless configured.
	state state.State
	db    tsdb.TSDB
}

// edgexLevel converts a logrus level name to the EdgeX logger's level names.
func edgexLevel(level logrus.Level) string {
	switch level {
	case logrus.TraceLevel:
		return "TRACE"
	case logrus.DebugLevel:
		return "DEBUG"
	case logrus.InfoLevel:
		return "INFO"
	case logrus.WarnLevel:
		return "WARN"
	}
	return "ERROR"
}

func loadConfig(c *cli.Context) (*Config, error) {
	cfg, err := ReadConfigFile(c.GlobalString("config"))
	if err != nil {
		return nil, err
	}

	for flag, dst := range map[string]*string{
		"url":    &cfg.DeviceService.URL,
		"device": &cfg.DeviceService.Device,
		"epc":    &cfg.Tag.EPC,
		"tid":    &cfg.Tag.TID,
	} {
		if v := c.GlobalString(flag); v != "" {
			*dst = v
		}
	}

	if cfg.DeviceService.Device == "" {
		return nil, errors.New("a device is required; set it with --device or in the config file")
	}
	if cfg.Tag.EPC == "" {
		return nil, errors.New("an EPC is required; set it with --epc or in the config file")
	}
	return cfg, nil
}

func openState(cfg StateConfig) (state.State, error) {
	switch strings.ToLower(cfg.Backend) {
	case "":
		return nil, nil
	case "file":
		return state.OpenFileState(cfg.Filename)
	case "redis":
		return state.OpenRedisState(cfg.RedisHost, cfg.RedisPort, cfg.RedisKey)
	}
	return nil, errors.Errorf("unknown state backend %q", cfg.Backend)
}

func newTool(c *cli.Context) (*tool, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	dsURL, err := url.Parse(strings.TrimSpace(cfg.DeviceService.URL))
	if err != nil {
		return nil, errors.Wrap(err, "invalid device service URL")
	}
	if dsURL.Scheme == "" || dsURL.Host == "" {
		return nil, errors.Errorf("invalid device service URL, endpoint=%s", dsURL.String())
	}

	t := &tool{
		cfg: cfg,
		lc:  logger.NewClientStdOut("baptool", false, edgexLevel(logrus.GetLevel())),
	}

	port := llrp.NewDSClient(dsURL, http.DefaultClient).Port(cfg.DeviceService.Device)
	tag := tagmem.TagID{EPC: cfg.Tag.EPC, TID: cfg.Tag.TID}
	t.sess = session.New(port, tag, t.lc, session.WithReflectedPower(port.ReflectedPower))

	if t.state, err = openState(cfg.State); err != nil {
		return nil, errors.Wrap(err, "failed to open state")
	}

	if cfg.OpenTSDB.Host != "" {
		db, err := tsdb.NewOpenTSDBClient(cfg.OpenTSDB.Host, cfg.OpenTSDB.Port, cfg.OpenTSDB.MetricsPrefix)
		if err != nil {
			return nil, err
		}
		t.db = db
	}

	return t, nil
}

// action adapts a command that works on the configured tag to a cli.ActionFunc.
func action(f func(c *cli.Context, t *tool) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		t, err := newTool(c)
		if err != nil {
			return err
		}
		return f(c, t)
	}
}

func main() {
	app := cli.NewApp()
	app.Name = "baptool"
	app.Usage = "Runs one-off operations against a BAP sensor tag"
	app.Version = Version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Value: "baptool.toml",
			Usage: "Specifies path to config file",
		},
		cli.StringFlag{
			Name:  "url",
			Usage: "Device service URL; overrides the config file",
		},
		cli.StringFlag{
			Name:  "device",
			Usage: "Reader (EdgeX device) name; overrides the config file",
		},
		cli.StringFlag{
			Name:  "epc",
			Usage: "EPC of the tag; overrides the config file",
		},
		cli.StringFlag{
			Name:  "tid",
			Usage: "TID of the tag; overrides the config file",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "One of trace, debug, info, warn, or error",
		},
	}
	app.Before = func(c *cli.Context) error {
		level, err := logrus.ParseLevel(c.GlobalString("log-level"))
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		return nil
	}
	app.Commands = commands()

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
