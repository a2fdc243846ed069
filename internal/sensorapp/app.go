//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package sensorapp is an EdgeX application service
// that runs BAP sensor tag measurements through the RFID LLRP device service.
package sensorapp

import (
	"fmt"
	"github.com/edgexfoundry/app-functions-sdk-go/appsdk"
	"github.com/edgexfoundry/app-functions-sdk-go/pkg/transforms"
	"github.com/edgexfoundry/go-mod-configuration/configuration"
	"github.com/edgexfoundry/go-mod-core-contracts/clients/logger"
	"github.com/pkg/errors"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/llrp"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/session"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/state"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/tagmem"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/tsdb"
	"golang.org/x/net/context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"periph.io/x/periph/conn/physic"
	"strings"
	"sync"
	"syscall"
)

const (
	serviceKey = "bap-sensor"

	folderPerm = 0755 // folders require the execute flag in order to create new files
)

// sensorPort is a tag memory port that can also report the reader's reflected power.
type sensorPort interface {
	tagmem.Port
	ReflectedPower(freq physic.Frequency) (i, q int32, err error)
}

type SensorApp struct {
	edgexSdk     *appsdk.AppFunctionsSDK
	lc           logger.LoggingClient
	configClient configuration.Client
	settings     ApplicationSettings

	devService llrp.DSClient
	readers    *llrp.ReaderSet
	state      state.State
	// tsdb is nil when OpenTSDB export is disabled.
	tsdb tsdb.TSDB

	coreMu   sync.RWMutex
	coreData coreDataPusher

	campaignMu sync.Mutex
	campaigns  map[string]*campaign
	campaignWg sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	// openPort returns a port to tags in the field of the named reader.
	openPort    func(device string) sensorPort
	sessionOpts []session.Option
}

func NewSensorApp() *SensorApp {
	app := &SensorApp{
		readers:   llrp.NewReaderSet(),
		campaigns: map[string]*campaign{},
		settings:  NewApplicationSettings(),
	}
	app.ctx, app.cancel = context.WithCancel(context.Background())
	app.openPort = func(device string) sensorPort {
		return app.devService.Port(device)
	}
	return app
}

// LoggingClient returns the SDK's logger, or nil if the SDK isn't initialized.
func (app *SensorApp) LoggingClient() logger.LoggingClient {
	return app.lc
}

func (app *SensorApp) Initialize() (err error) {
	app.edgexSdk = &appsdk.AppFunctionsSDK{ServiceKey: serviceKey}
	if err := app.edgexSdk.Initialize(); err != nil {
		if app.edgexSdk.LoggingClient == nil {
			fmt.Printf("SDK initialization failed: %v\n", err)
		} else {
			app.edgexSdk.LoggingClient.Error(fmt.Sprintf("SDK initialization failed: %v", err))
		}
		os.Exit(1)
	}

	app.lc = app.edgexSdk.LoggingClient
	app.lc.Info("Starting.")

	appSettings := app.edgexSdk.ApplicationSettings()
	if appSettings == nil {
		return errors.New("missing application settings")
	}

	if app.configClient, err = getConfigClient(); err != nil {
		app.lc.Warn("Failed to create config client.", "error", err.Error())
	}
	if appSettings, err = syncSettings(app.configClient, app.lc, appSettings); err != nil {
		return errors.Wrap(err, "failed to sync application settings")
	}

	app.settings, err = ParseApplicationSettings(appSettings)
	if errors.Is(err, ErrUnexpectedConfigItems) {
		// warn on unexpected config items, but do not exit
		app.lc.Warn(err.Error())
		err = nil
	} else if err != nil {
		return errors.Wrap(err, "config parse error")
	}

	metadataURI, err := parseServiceURL("metadata", app.settings.MetadataServiceURL)
	if err != nil {
		return err
	}
	devServURI, err := parseServiceURL("device", app.settings.DeviceServiceURL)
	if err != nil {
		return err
	}

	app.devService = llrp.NewDSClient(&url.URL{
		Scheme: devServURI.Scheme,
		Host:   devServURI.Host,
	}, http.DefaultClient)

	dsName := app.settings.DeviceServiceName
	if dsName == "" {
		return errors.New("missing device service name")
	}
	metadataURI.Path = "/api/v1/device/servicename/" + dsName
	deviceNames, err := llrp.GetDevices(metadataURI.String(), http.DefaultClient)
	if err != nil {
		return errors.Wrapf(err, "failed to get existing device names. path=%s", metadataURI.String())
	}
	for _, name := range deviceNames {
		app.readers.AddReader(name)
	}
	app.lc.Info(fmt.Sprintf("Found %d readers.", len(deviceNames)))

	if app.state, err = openState(app.settings); err != nil {
		return err
	}

	if app.settings.OpenTSDBHost != "" {
		db, err := tsdb.NewOpenTSDBClient(app.settings.OpenTSDBHost,
			app.settings.OpenTSDBPort, app.settings.MetricsPrefix)
		if err != nil {
			return err
		}
		app.tsdb = db
		app.lc.Info("Exporting readings to OpenTSDB.", "host", app.settings.OpenTSDBHost)
	}

	return app.addRoutes()
}

func parseServiceURL(name, raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s service URL", name)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("invalid %s service URL, endpoint=%s", name, u.String())
	}
	return u, nil
}

// openState opens the tag state from the configured backend.
func openState(as ApplicationSettings) (state.State, error) {
	switch as.StateBackend {
	case StateBackendRedis:
		st, err := state.OpenRedisState(as.RedisHost, as.RedisPort, as.RedisKey)
		return st, errors.Wrap(err, "failed to open redis state")
	default:
		if dir := filepath.Dir(as.StateFile); dir != "." {
			if err := os.MkdirAll(dir, folderPerm); err != nil {
				return nil, errors.Wrapf(err, "failed to create state directory %s", dir)
			}
		}
		st, err := state.OpenFileState(as.StateFile)
		return st, errors.Wrap(err, "failed to open state file")
	}
}

func (app *SensorApp) RunUntilCancelled() error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.taskLoop(app.ctx)
		app.lc.Info("Task loop has exited.")
	}()

	// The SDK doesn't always hand control back on shutdown,
	// so we catch the signals ourselves to stop campaigns and persist state.
	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		s := <-signals

		app.lc.Info(fmt.Sprintf("Received '%s' signal from OS.", s.String()))
		app.cancel() // signal the taskLoop to finish
	}()

	// Subscribe to events.
	err := app.edgexSdk.SetFunctionsPipeline(
		transforms.NewFilter([]string{resourceReaderNotification}).FilterByValueDescriptor,
		app.processEdgeXEvent,
	)
	if err != nil {
		return errors.Wrap(err, "failed to build pipeline")
	}
	if err := app.edgexSdk.MakeItRun(); err != nil {
		return errors.Wrap(err, "failed to run pipeline")
	}

	// let task loop complete
	wg.Wait()
	app.lc.Info("Exiting.")

	return nil
}
