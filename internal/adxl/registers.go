//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package adxl

// Register is an ADXL363 register address.
type Register = byte

const (
	RegDevIDAD      Register = 0x00
	RegDevIDMST     Register = 0x01
	RegPartID       Register = 0x02
	RegRevID        Register = 0x03
	RegXData        Register = 0x08
	RegYData        Register = 0x09
	RegZData        Register = 0x0A
	RegStatus       Register = 0x0B
	RegFIFOEntriesL Register = 0x0C
	RegFIFOEntriesH Register = 0x0D
	RegXDataL       Register = 0x0E
	RegXDataH       Register = 0x0F
	RegYDataL       Register = 0x10
	RegYDataH       Register = 0x11
	RegZDataL       Register = 0x12
	RegZDataH       Register = 0x13
	RegTempL        Register = 0x14
	RegTempH        Register = 0x15
	RegSoftReset    Register = 0x1F
	RegThreshActL   Register = 0x20
	RegThreshActH   Register = 0x21
	RegTimeAct      Register = 0x22
	RegThreshInactL Register = 0x23
	RegThreshInactH Register = 0x24
	RegTimeInactL   Register = 0x25
	RegTimeInactH   Register = 0x26
	RegActInactCtl  Register = 0x27
	RegFIFOControl  Register = 0x28
	RegFIFOSamples  Register = 0x29
	RegIntMap1      Register = 0x2A
	RegIntMap2      Register = 0x2B
	RegFilterCtl    Register = 0x2C
	RegPowerCtl     Register = 0x2D
	RegSelfTest     Register = 0x2E
)

// SPI instructions understood by the accelerometer.
const (
	instrWrite    = 0x0A
	instrRead     = 0x0B
	instrFIFORead = 0x0D
)

// Register values.
const (
	fifoModeStream   = 0x02
	fifoSamplesMax   = 0x80
	filterRange2G    = 0x00
	filterHalfBW     = 0x10
	filterODR12Hz5   = 0x00
	powerMeasure     = 0x02
	powerStandby     = 0x00
	selfTestEnable   = 0x01
	selfTestDisable  = 0x00
	fifoEntriesHMask = 0x03
)

// DeviceID is the content of DEVID_AD, DEVID_MST and PARTID.
var DeviceID = [3]byte{0xAD, 0x1D, 0xF3}
