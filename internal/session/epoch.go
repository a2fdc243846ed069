//
// Copyright (C) 2020 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"time"
)

// UnixMilli converts provided time to milliseconds since epoch
func UnixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano() / 1e6
}
