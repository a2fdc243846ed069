//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/logutil"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/sensorapp"
	"os"
)

func main() {
	app := sensorapp.NewSensorApp()
	err := app.Initialize()
	if app.LoggingClient() == nil {
		// the SDK failed before it could give us a logger
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}

	lgr := logutil.LogWrap{LoggingClient: app.LoggingClient()}
	lgr.ExitIfErr(err, "Failed to initialize.")
	lgr.ExitIfErr(app.RunUntilCancelled(), "Failed to run.")
	os.Exit(0)
}
