//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package tagmem

import (
	"fmt"
	"github.com/pkg/errors"
)

var (
	ErrNoResponse     = errors.New("tag did not respond")
	ErrTimeout        = errors.New("reader operation timed out")
	ErrMalformedReply = errors.New("malformed reply from reader")
)

// LinkError reports a failed exchange between the reader and the tag.
// Address and Bank are meaningless when Op is "select" or "inventory".
type LinkError struct {
	Op      string
	Bank    MemoryBank
	Address Address
	Err     error
}

func (e *LinkError) Error() string {
	switch e.Op {
	case "read", "write":
		return fmt.Sprintf("tag %s failed at %s:0x%X: %v", e.Op, e.Bank, uint16(e.Address), e.Err)
	}
	return fmt.Sprintf("tag %s failed: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

// Cause lets github.com/pkg/errors.Cause see through a LinkError.
func (e *LinkError) Cause() error { return e.Err }

// IsLinkError returns true if err is, or wraps, a *LinkError.
func IsLinkError(err error) bool {
	var le *LinkError
	return errors.As(err, &le)
}
