//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package stub simulates a BAP sensor tag and the reader in front of it,
// so protocol logic can be exercised without RF hardware.
package stub

import (
	"encoding/binary"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/tagmem"
	"sync"
	"time"
)

// simulated accelerometer registers and SPI instructions
const (
	regDevIDAD      = 0x00
	regFIFOEntriesL = 0x0C
	regFIFOEntriesH = 0x0D
	regXDataL       = 0x0E
	regPowerCtl     = 0x2D
	regSelfTest     = 0x2E
	numRegisters    = 0x30

	spiWrite    = 0x0A
	spiRead     = 0x0B
	spiFIFORead = 0x0D

	measureMode = 0x02
)

type memKey struct {
	bank tagmem.MemoryBank
	addr tagmem.Address
}

// WriteOp records a single successful write.
type WriteOp struct {
	Bank    tagmem.MemoryBank
	Address tagmem.Address
	Word    tagmem.Word
}

// Tag implements tagmem.Port on top of simulated tag memory.
//
// Time is virtual: SampleWindow and Sleep advance the tag's clock
// without blocking, so long settle delays cost nothing in tests.
type Tag struct {
	mu sync.Mutex

	EPC string
	TID string

	// Absent makes every access fail as if the tag left the field.
	Absent bool
	// SensorCode is latched into SensorDataMSW whenever a conversion is triggered.
	SensorCode uint16
	// Samples are queued behind the bootstrap entries each time measurement starts.
	Samples [][3]int16
	// ExtraEntries appends unpaired x-axis entries to the FIFO, breaking the triplet layout.
	ExtraEntries int
	// LostEntries drops entries from the front of the FIFO when measurement starts,
	// so the bootstrap entries can go missing.
	LostEntries int
	// SelfTestDelta is added to the axis data while the self-test bit is set.
	SelfTestDelta [3]int16
	// Static is the axis data reported outside of the FIFO.
	Static [3]int16
	// Stats is returned for every inventory round.
	Stats tagmem.LinkStats

	selected   string
	mem        map[memKey]tagmem.Word
	failWrites map[memKey]int
	writes     []WriteOp
	windows    []time.Duration
	regs       [numRegisters]byte
	fifo       []uint16
	now        time.Time
}

// NewTag returns a present, unselected tag with the accelerometer's ID registers populated.
func NewTag(epc, tid string) *Tag {
	t := &Tag{
		EPC:        epc,
		TID:        tid,
		mem:        map[memKey]tagmem.Word{},
		failWrites: map[memKey]int{},
		now:        time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC),
		Stats:      tagmem.LinkStats{PeakRSSI: -48, MeanRSSI: -52, Rounds: 1},
	}
	t.regs[regDevIDAD+0] = 0xAD
	t.regs[regDevIDAD+1] = 0x1D
	t.regs[regDevIDAD+2] = 0xF3
	return t
}

// Set stores a word directly, bypassing the air interface.
func (t *Tag) Set(cw tagmem.ControlWord, v uint16) {
	t.mu.Lock()
	t.mem[memKey{cw.Bank, cw.Address}] = tagmem.EncodeWord(v)
	t.mu.Unlock()
}

// Get returns a word directly, bypassing the air interface.
func (t *Tag) Get(cw tagmem.ControlWord) uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tagmem.DecodeWord(t.mem[memKey{cw.Bank, cw.Address}])
}

// FailWrites makes the next n writes to cw fail with tagmem.ErrNoResponse.
func (t *Tag) FailWrites(cw tagmem.ControlWord, n int) {
	t.mu.Lock()
	t.failWrites[memKey{cw.Bank, cw.Address}] = n
	t.mu.Unlock()
}

// Writes returns a copy of the write log.
func (t *Tag) Writes() []WriteOp {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]WriteOp, len(t.writes))
	copy(out, t.writes)
	return out
}

// WritesTo returns the words written to cw, in order.
func (t *Tag) WritesTo(cw tagmem.ControlWord) []tagmem.Word {
	var out []tagmem.Word
	for _, w := range t.Writes() {
		if w.Bank == cw.Bank && w.Address == cw.Address {
			out = append(out, w.Word)
		}
	}
	return out
}

// ResetLog clears the write and window logs.
func (t *Tag) ResetLog() {
	t.mu.Lock()
	t.writes = nil
	t.windows = nil
	t.mu.Unlock()
}

// Windows returns the durations of every SampleWindow call.
func (t *Tag) Windows() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]time.Duration, len(t.windows))
	copy(out, t.windows)
	return out
}

// Register returns the current value of a simulated accelerometer register.
func (t *Tag) Register(reg byte) byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.regs[reg]
}

// SetRegister overwrites a simulated accelerometer register.
func (t *Tag) SetRegister(reg, v byte) {
	t.mu.Lock()
	t.regs[reg] = v
	t.mu.Unlock()
}

// Now returns the tag's virtual time.
func (t *Tag) Now() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now
}

// Sleep advances the virtual clock; it never blocks.
func (t *Tag) Sleep(d time.Duration) {
	t.mu.Lock()
	t.now = t.now.Add(d)
	t.mu.Unlock()
}

func (t *Tag) Select(epc string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Absent || epc != t.EPC {
		t.selected = ""
		return &tagmem.LinkError{Op: "select", Err: tagmem.ErrNoResponse}
	}
	t.selected = epc
	return nil
}

func (t *Tag) Read(bank tagmem.MemoryBank, addr tagmem.Address, wordCount uint16) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Absent || t.selected == "" {
		return nil, &tagmem.LinkError{Op: "read", Bank: bank, Address: addr, Err: tagmem.ErrNoResponse}
	}

	data := make([]byte, 0, int(wordCount)*2)
	for i := 0; i < int(wordCount); i++ {
		w := t.mem[memKey{bank, addr + tagmem.Address(i)}]
		data = append(data, w[0], w[1])
	}
	return data, nil
}

func (t *Tag) Write(bank tagmem.MemoryBank, addr tagmem.Address, word tagmem.Word) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := memKey{bank, addr}
	if t.Absent || t.selected == "" {
		return &tagmem.LinkError{Op: "write", Bank: bank, Address: addr, Err: tagmem.ErrNoResponse}
	}
	if n := t.failWrites[key]; n > 0 {
		t.failWrites[key] = n - 1
		return &tagmem.LinkError{Op: "write", Bank: bank, Address: addr, Err: tagmem.ErrNoResponse}
	}

	t.mem[key] = word
	t.writes = append(t.writes, WriteOp{bank, addr, word})

	switch key {
	case memKey{tagmem.SensorDataMSW.Bank, tagmem.SensorDataMSW.Address}:
		if tagmem.DecodeWord(word) == 0 {
			t.mem[key] = tagmem.EncodeWord(t.SensorCode)
		}
	case memKey{tagmem.SPICommand.Bank, tagmem.SPICommand.Address}:
		t.spiTransfer(word[0], word[1])
	}
	return nil
}

func (t *Tag) SampleWindow(d time.Duration, onTick func(tagmem.LinkStats)) (tagmem.LinkStats, error) {
	t.mu.Lock()
	if t.Absent {
		t.mu.Unlock()
		return tagmem.LinkStats{}, &tagmem.LinkError{Op: "inventory", Err: tagmem.ErrNoResponse}
	}
	t.windows = append(t.windows, d)
	if d == 0 {
		d = time.Millisecond
	}
	t.now = t.now.Add(d)
	stats := t.Stats
	t.mu.Unlock()

	if onTick != nil {
		onTick(stats)
	}
	return stats, nil
}

// spiTransfer executes the bridge command; t.mu must be held.
func (t *Tag) spiTransfer(instruction, reg byte) {
	length := int(t.mem[memKey{tagmem.SPILength.Bank, tagmem.SPILength.Address}][1])
	if length > tagmem.SPIDataWords*2 {
		length = tagmem.SPIDataWords * 2
	}

	buf := make([]byte, tagmem.SPIDataWords*2)
	for i := 0; i < tagmem.SPIDataWords; i++ {
		w := t.mem[memKey{tagmem.SPIData.Bank, tagmem.SPIData.Address + tagmem.Address(i)}]
		buf[i*2], buf[i*2+1] = w[0], w[1]
	}

	switch instruction {
	case spiWrite:
		for i := 0; i < length && int(reg)+i < numRegisters; i++ {
			t.writeRegister(reg+byte(i), buf[i])
		}
		return

	case spiRead:
		t.refreshRegisters()
		for i := 0; i < length; i++ {
			if int(reg)+i < numRegisters {
				buf[i] = t.regs[int(reg)+i]
			} else {
				buf[i] = 0
			}
		}

	case spiFIFORead:
		for i := 0; i+1 < length; i += 2 {
			var entry uint16
			if len(t.fifo) > 0 {
				entry = t.fifo[0]
				t.fifo = t.fifo[1:]
			}
			binary.LittleEndian.PutUint16(buf[i:], entry)
		}

	default:
		return
	}

	for i := 0; i < tagmem.SPIDataWords; i++ {
		t.mem[memKey{tagmem.SPIData.Bank, tagmem.SPIData.Address + tagmem.Address(i)}] =
			tagmem.Word{buf[i*2], buf[i*2+1]}
	}
}

func (t *Tag) writeRegister(reg, v byte) {
	wasMeasuring := t.regs[regPowerCtl]&0x03 == measureMode
	t.regs[reg] = v

	if reg == regPowerCtl && !wasMeasuring && v&0x03 == measureMode {
		t.fifo = t.fifo[:0]
		for axis := uint16(0); axis < 3; axis++ {
			t.fifo = append(t.fifo, fifoEntry(axis, 0x7FF))
		}
		for _, s := range t.Samples {
			for axis := uint16(0); axis < 3; axis++ {
				t.fifo = append(t.fifo, fifoEntry(axis, s[axis]))
			}
		}
		for i := 0; i < t.ExtraEntries; i++ {
			t.fifo = append(t.fifo, fifoEntry(0, 0))
		}
		lost := t.LostEntries
		if lost > len(t.fifo) {
			lost = len(t.fifo)
		}
		t.fifo = append(t.fifo[:0], t.fifo[lost:]...)
	}
}

// refreshRegisters updates the read-only registers from the simulated state.
func (t *Tag) refreshRegisters() {
	n := len(t.fifo)
	t.regs[regFIFOEntriesL] = byte(n)
	t.regs[regFIFOEntriesH] = byte(n>>8) & 0x03

	for axis := 0; axis < 3; axis++ {
		v := t.Static[axis]
		if t.regs[regSelfTest]&0x01 != 0 {
			v += t.SelfTestDelta[axis]
		}
		binary.LittleEndian.PutUint16(t.regs[regXDataL+axis*2:], uint16(v))
	}
}

// fifoEntry packs v into the accelerometer's FIFO format:
// the axis in bits 15:14, a sign-extended 14-bit value below.
func fifoEntry(axis uint16, v int16) uint16 {
	return axis<<14 | uint16(v)&0x3FFF
}
