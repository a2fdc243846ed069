//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package stub

import (
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/tagmem"
	"testing"
	"time"
)

const testEPC = "E2801191200078A1"

func TestSelectRequired(t *testing.T) {
	tag := NewTag(testEPC, "E2801191")
	_, err := tag.Read(tagmem.BankUser, 0x100, 1)
	require.True(t, tagmem.IsLinkError(err))

	require.Error(t, tag.Select("300833B2DDD9014000000000"))
	require.NoError(t, tag.Select(testEPC))

	tag.Set(tagmem.CalibrationActive, 0x03A5)
	v, err := tagmem.ReadWord(tag, tagmem.CalibrationActive)
	require.NoError(t, err)
	require.Equal(t, uint16(0x03A5), v)
}

func TestFailWrites(t *testing.T) {
	tag := NewTag(testEPC, "")
	require.NoError(t, tag.Select(testEPC))
	tag.FailWrites(tagmem.BAPMode, 2)

	for i := 0; i < 2; i++ {
		err := tagmem.WriteWord(tag, tagmem.BAPMode, tagmem.Word{0x00, 0x00})
		require.True(t, errors.Is(err, tagmem.ErrNoResponse))
	}
	require.NoError(t, tagmem.WriteWord(tag, tagmem.BAPMode, tagmem.Word{0x00, 0x00}))
	require.Len(t, tag.WritesTo(tagmem.BAPMode), 1)
}

func TestConversionTrigger(t *testing.T) {
	tag := NewTag(testEPC, "")
	tag.SensorCode = 0x0101
	require.NoError(t, tag.Select(testEPC))
	require.NoError(t, tagmem.WriteWord(tag, tagmem.SensorDataMSW, tagmem.Word{}))
	require.Equal(t, uint16(0x0101), tag.Get(tagmem.SensorDataMSW))
}

func TestVirtualClock(t *testing.T) {
	tag := NewTag(testEPC, "")
	start := tag.Now()

	var ticks int
	_, err := tag.SampleWindow(200*time.Millisecond, func(tagmem.LinkStats) { ticks++ })
	require.NoError(t, err)
	tag.Sleep(time.Second)

	require.Equal(t, 1, ticks)
	require.Equal(t, 1200*time.Millisecond, tag.Now().Sub(start))
	require.Equal(t, []time.Duration{200 * time.Millisecond}, tag.Windows())

	tag.Absent = true
	_, err = tag.SampleWindow(0, nil)
	require.True(t, tagmem.IsLinkError(err))
}

func TestSPIBridgeRegisterAccess(t *testing.T) {
	tag := NewTag(testEPC, "")
	require.NoError(t, tag.Select(testEPC))

	// read three ID registers
	require.NoError(t, tagmem.WriteWord(tag, tagmem.SPILength, tagmem.EncodeWord(3)))
	require.NoError(t, tagmem.WriteWord(tag, tagmem.SPICommand, tagmem.Word{spiRead, regDevIDAD}))
	data, err := tag.Read(tagmem.SPIData.Bank, tagmem.SPIData.Address, 2)
	require.NoError(t, err)
	require.Equal(t, []byte{0xAD, 0x1D, 0xF3}, data[:3])

	// write one register
	require.NoError(t, tagmem.WriteWord(tag, tagmem.SPIData, tagmem.Word{0x55, 0x00}))
	require.NoError(t, tagmem.WriteWord(tag, tagmem.SPILength, tagmem.EncodeWord(1)))
	require.NoError(t, tagmem.WriteWord(tag, tagmem.SPICommand, tagmem.Word{spiWrite, 0x25}))
	require.Equal(t, byte(0x55), tag.Register(0x25))
}

func TestFIFOBootstrap(t *testing.T) {
	tag := NewTag(testEPC, "")
	tag.Samples = [][3]int16{{10, -20, 1000}}
	require.NoError(t, tag.Select(testEPC))

	require.NoError(t, tagmem.WriteWord(tag, tagmem.SPIData, tagmem.Word{measureMode, 0x00}))
	require.NoError(t, tagmem.WriteWord(tag, tagmem.SPILength, tagmem.EncodeWord(1)))
	require.NoError(t, tagmem.WriteWord(tag, tagmem.SPICommand, tagmem.Word{spiWrite, regPowerCtl}))
	require.Len(t, tag.fifo, 6)
	require.Equal(t, uint16(2<<14|1000), tag.fifo[5])
	require.Equal(t, uint16(1<<14|(0x3FFF&^19)), tag.fifo[4])
}
