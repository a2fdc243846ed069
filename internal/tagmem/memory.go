//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package tagmem describes the memory of a BAP sensor tag as seen through an RFID reader.
//
// Nothing on these tags is reachable except by Gen2 memory reads and writes,
// so every sensor operation in this module is eventually expressed
// as a sequence of word accesses against a Port.
package tagmem

import (
	"fmt"
	"time"
)

// MemoryBank selects one of the four Gen2 address spaces.
type MemoryBank uint8

const (
	BankReserved = MemoryBank(iota)
	BankEPC
	BankTID
	BankUser
)

func (b MemoryBank) String() string {
	switch b {
	case BankReserved:
		return "Reserved"
	case BankEPC:
		return "EPC"
	case BankTID:
		return "TID"
	case BankUser:
		return "User"
	}
	return fmt.Sprintf("MemoryBank(%d)", uint8(b))
}

// Address is a bank-local 16-bit word offset.
type Address uint16

// ControlWord names a single word of tag memory with a documented bit layout.
type ControlWord struct {
	Name    string
	Bank    MemoryBank
	Address Address
}

func (cw ControlWord) String() string {
	return fmt.Sprintf("%s(%s:0x%X)", cw.Name, cw.Bank, uint16(cw.Address))
}

// The control word table is part of the tag's wire contract.
var (
	TempSensorControl1 = ControlWord{"TempSensorControl1", BankUser, 0xEC}
	TempSensorControl2 = ControlWord{"TempSensorControl2", BankUser, 0xED}
	TempSensorControl3 = ControlWord{"TempSensorControl3", BankUser, 0xEE}
	CalibrationActive  = ControlWord{"CalibrationActive", BankUser, 0xEF}
	IOControl          = ControlWord{"IOControl", BankUser, 0xF0}
	BatteryManagement1 = ControlWord{"BatteryManagement1", BankUser, 0xF1}
	BatteryManagement2 = ControlWord{"BatteryManagement2", BankUser, 0xF2}
	TotalWord          = ControlWord{"Total", BankUser, 0xF3}
	SensorDataMSW      = ControlWord{"SensorDataMSW", BankUser, 0x100}
	SensorDataLSW      = ControlWord{"SensorDataLSW", BankUser, 0x101}
	BAPMode            = ControlWord{"BAPMode", BankUser, 0x10D}

	// CalibrationFactory is written at manufacture and cannot be changed.
	CalibrationFactory = ControlWord{"CalibrationFactory", BankTID, 0x0D}
)

// TagID identifies a tag for the duration of a session.
// The EPC is what the reader selects on; the TID is informational.
type TagID struct {
	EPC string
	TID string
}

func (t TagID) String() string {
	if t.TID == "" {
		return t.EPC
	}
	return t.EPC + "/" + t.TID
}

// LinkStats summarizes the signal observed during a sample window.
type LinkStats struct {
	PeakRSSI float64
	MeanRSSI float64
	Rounds   int
}

// Merge folds other into s, weighting means by the number of inventory rounds.
func (s LinkStats) Merge(other LinkStats) LinkStats {
	if other.Rounds == 0 {
		return s
	}
	if s.Rounds == 0 {
		return other
	}

	total := s.Rounds + other.Rounds
	merged := LinkStats{
		PeakRSSI: s.PeakRSSI,
		MeanRSSI: (s.MeanRSSI*float64(s.Rounds) + other.MeanRSSI*float64(other.Rounds)) / float64(total),
		Rounds:   total,
	}
	if other.PeakRSSI > merged.PeakRSSI {
		merged.PeakRSSI = other.PeakRSSI
	}
	return merged
}

// Port is the contract this module needs from an RFID reader.
//
// Select must precede reads and writes; the selection persists on the reader
// until another tag is selected, but the tag can drop out of the field at any time,
// in which case the next access fails with a *LinkError.
//
// SampleWindow runs inventory rounds back-to-back for d,
// calling onTick (if not nil) with the statistics of each round,
// and returns the aggregate. It keeps a semi-BAP tag powered.
// A zero duration runs exactly one round,
// which also clears any Gen2 error state left in the reader.
//
// Implementations are not safe for concurrent use:
// a reader has a single air interface, and the selected tag is shared state.
type Port interface {
	Select(epc string) error
	Read(bank MemoryBank, addr Address, wordCount uint16) ([]byte, error)
	Write(bank MemoryBank, addr Address, word Word) error
	SampleWindow(d time.Duration, onTick func(LinkStats)) (LinkStats, error)
}

// ReadWord reads a single control word.
func ReadWord(p Port, cw ControlWord) (uint16, error) {
	data, err := p.Read(cw.Bank, cw.Address, 1)
	if err != nil {
		return 0, err
	}
	if len(data) < 2 {
		return 0, &LinkError{Op: "read", Bank: cw.Bank, Address: cw.Address, Err: ErrMalformedReply}
	}
	return DecodeWord(Word{data[0], data[1]}), nil
}

// WriteWord writes raw bytes to a control word.
func WriteWord(p Port, cw ControlWord, w Word) error {
	return p.Write(cw.Bank, cw.Address, w)
}

// The accelerometer on a sensor tag sits behind an SPI bridge mapped into user memory.
// Writing SPICommand starts a transfer of the length held in SPILength;
// write data must already be in the SPIData buffer, and read data lands there.
var (
	SPICommand = ControlWord{"SPICommand", BankUser, 0x110}
	SPILength  = ControlWord{"SPILength", BankUser, 0x111}
	SPIData    = ControlWord{"SPIData", BankUser, 0x112}
)

// SPIDataWords is the size of the SPI data buffer.
const SPIDataWords = 14

// ReadWords reads n consecutive words starting at cw.
func ReadWords(p Port, cw ControlWord, n uint16) ([]uint16, error) {
	data, err := p.Read(cw.Bank, cw.Address, n)
	if err != nil {
		return nil, err
	}
	if len(data) < int(n)*2 {
		return nil, &LinkError{Op: "read", Bank: cw.Bank, Address: cw.Address, Err: ErrMalformedReply}
	}
	return Words(data[:int(n)*2]), nil
}
