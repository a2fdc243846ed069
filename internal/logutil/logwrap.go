//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package logutil adds conditional helpers to an EdgeX LoggingClient.
package logutil

import (
	"github.com/edgexfoundry/go-mod-core-contracts/clients/logger"
	"os"
)

type LogWrap struct {
	logger.LoggingClient

	// Exit ends the process; nil means os.Exit.
	Exit func(code int)
}

type KeyValue struct {
	Key string
	Val interface{}
}

func flatten(params []KeyValue) []interface{} {
	parts := make([]interface{}, len(params)*2)
	for i := range params {
		parts[i*2] = params[i].Key
		parts[i*2+1] = params[i].Val
	}
	return parts
}

// ErrIf logs msg at error level if cond is true, and returns cond.
func (lgr LogWrap) ErrIf(cond bool, msg string, params ...KeyValue) bool {
	if !cond {
		return false
	}

	lgr.Error(msg, flatten(params)...)
	return true
}

// WarnIfErr logs msg at warning level if err is not nil, and reports whether it did.
func (lgr LogWrap) WarnIfErr(err error, msg string, params ...KeyValue) bool {
	if err == nil {
		return false
	}

	lgr.Warn(msg, flatten(append(params, KeyValue{"error", err.Error()}))...)
	return true
}

// ExitIf logs msg and exits with status 1 if cond is true.
func (lgr LogWrap) ExitIf(cond bool, msg string, params ...KeyValue) {
	if !lgr.ErrIf(cond, msg, params...) {
		return
	}

	if lgr.Exit != nil {
		lgr.Exit(1)
		return
	}
	os.Exit(1)
}

func (lgr LogWrap) ExitIfErr(err error, msg string, params ...KeyValue) {
	var errVal interface{}
	if err != nil {
		errVal = err.Error()
	}
	lgr.ExitIf(err != nil, msg, append(params, KeyValue{"error", errVal})...)
}
