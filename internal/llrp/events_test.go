//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package llrp

import (
	"encoding/json"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestReaderEventNotification(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		connected bool
		closed    bool
	}{
		{"success", `{"ReaderEventNotificationData":{"UTCTimestamp":1617200000000000,"ConnectionAttemptEvent":0}}`, true, false},
		{"conn exists", `{"ReaderEventNotificationData":{"ConnectionAttemptEvent":1}}`, false, false},
		{"another attempt", `{"ReaderEventNotificationData":{"ConnectionAttemptEvent":4}}`, false, false},
		{"closed", `{"ReaderEventNotificationData":{"ConnectionCloseEvent":{}}}`, false, true},
		{"antenna event", `{"ReaderEventNotificationData":{"AntennaEvent":{"AntennaID":1}}}`, false, false},
		{"empty", `{}`, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &ReaderEventNotification{}
			require.NoError(t, json.Unmarshal([]byte(tt.data), n))
			require.Equal(t, tt.connected, n.Connected())
			require.Equal(t, tt.closed, n.Closed())
		})
	}
}

func TestReaderEventNotificationMarshal(t *testing.T) {
	ev := ConnSuccess
	n := ReaderEventNotification{ReaderEventNotificationData{ConnectionAttemptEvent: &ev}}
	data, err := json.Marshal(n)
	require.NoError(t, err)
	require.JSONEq(t, `{"ReaderEventNotificationData":{"ConnectionAttemptEvent":0}}`, string(data))
}
