//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package bap

const (
	// TempCodeMask keeps the 9 significant bits of a temperature code.
	TempCodeMask = 0x01FF
	tempSignBit  = 0x0100

	// DegreesPerLSB is the resolution of the temperature sensor.
	DegreesPerLSB = 0.25
)

// DecodeTemperature converts a raw sensor code to degrees Celsius.
//
// The code is a 9-bit two's complement value in quarter degrees;
// bits above bit 8 are ignored.
func DecodeTemperature(code uint16) float32 {
	code &= TempCodeMask
	v := int32(code)
	if code&tempSignBit != 0 {
		v -= TempCodeMask + 1
	}
	return float32(v) * DegreesPerLSB
}
