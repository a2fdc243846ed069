//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package logutil

import (
	"github.com/edgexfoundry/go-mod-core-contracts/clients/logger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestFlatten(t *testing.T) {
	require.Empty(t, flatten(nil))
	require.Equal(t, []interface{}{"epc", "E280", "trim", 1.25},
		flatten([]KeyValue{{"epc", "E280"}, {"trim", 1.25}}))
}

func TestExitIfErr(t *testing.T) {
	var codes []int
	lw := LogWrap{
		LoggingClient: logger.NewMockClient(),
		Exit:          func(code int) { codes = append(codes, code) },
	}

	lw.ExitIfErr(nil, "should not exit")
	require.Empty(t, codes)

	lw.ExitIfErr(errors.New("boom"), "should exit", KeyValue{"device", "r1"})
	require.Equal(t, []int{1}, codes)

	lw.ExitIf(false, "should not exit")
	require.Len(t, codes, 1)
}

func TestErrIfAndWarnIfErr(t *testing.T) {
	lw := LogWrap{LoggingClient: logger.NewMockClient()}
	require.False(t, lw.ErrIf(false, "nothing"))
	require.True(t, lw.ErrIf(true, "something", KeyValue{"k", "v"}))

	require.False(t, lw.WarnIfErr(nil, "nothing"))
	require.True(t, lw.WarnIfErr(errors.New("odd"), "something"))
}
