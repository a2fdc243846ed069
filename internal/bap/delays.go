//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package bap

import "time"

// Settling times required by the tag hardware.
const (
	// PowerCycleSettle follows every change of the BAP mode word.
	PowerCycleSettle = 500 * time.Millisecond
	// DefaultDischargeTime drains the on-tag capacitor before a pseudo-BAP reading.
	DefaultDischargeTime = 20 * time.Second
	// RechargeWindow is the inventory time given to a discharged tag to recover.
	RechargeWindow = 200 * time.Millisecond
	// FieldOffSettle follows the conversion trigger, before the result is valid.
	FieldOffSettle = 2500 * time.Millisecond
	// SemiBAPChargeWindow is the inventory time needed to charge a semi-BAP tag.
	SemiBAPChargeWindow = 2 * time.Second
)
