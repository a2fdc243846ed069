//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package adxl

import (
	"github.com/pkg/errors"
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/tagmem"
)

// MaxTransfer is the largest SPI transfer the tag's buffer can hold.
const MaxTransfer = tagmem.SPIDataWords * 2

// bridge runs SPI transfers through the tag's memory-mapped buffer.
// The tag must already be selected.
type bridge struct {
	port tagmem.Port
}

func (b bridge) start(instr, reg byte, n int) error {
	if err := tagmem.WriteWord(b.port, tagmem.SPILength, tagmem.EncodeWord(uint16(n))); err != nil {
		return errors.Wrap(err, "failed to set SPI transfer length")
	}
	if err := tagmem.WriteWord(b.port, tagmem.SPICommand, tagmem.Word{instr, reg}); err != nil {
		return errors.Wrap(err, "failed to start SPI transfer")
	}
	return nil
}

func (b bridge) result(n int) ([]byte, error) {
	words := uint16((n + 1) / 2)
	data, err := b.port.Read(tagmem.SPIData.Bank, tagmem.SPIData.Address, words)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read SPI buffer")
	}
	if len(data) < n {
		return nil, &tagmem.LinkError{Op: "read", Bank: tagmem.SPIData.Bank,
			Address: tagmem.SPIData.Address, Err: tagmem.ErrMalformedReply}
	}
	return data[:n], nil
}

func (b bridge) write(reg byte, data []byte) error {
	if len(data) == 0 || len(data) > MaxTransfer {
		return errors.Errorf("SPI write of %d bytes is out of range", len(data))
	}

	for i := 0; i < len(data); i += 2 {
		w := tagmem.Word{data[i], 0x00}
		if i+1 < len(data) {
			w[1] = data[i+1]
		}
		addr := tagmem.SPIData.Address + tagmem.Address(i/2)
		if err := b.port.Write(tagmem.SPIData.Bank, addr, w); err != nil {
			return errors.Wrap(err, "failed to fill SPI buffer")
		}
	}
	return b.start(instrWrite, reg, len(data))
}

func (b bridge) read(reg byte, n int) ([]byte, error) {
	if n <= 0 || n > MaxTransfer {
		return nil, errors.Errorf("SPI read of %d bytes is out of range", n)
	}
	if err := b.start(instrRead, reg, n); err != nil {
		return nil, err
	}
	return b.result(n)
}

// readFIFO pops n raw 2-byte entries, in as many transfers as needed.
func (b bridge) readFIFO(n int) ([]byte, error) {
	out := make([]byte, 0, n*2)
	for remaining := n * 2; remaining > 0; {
		chunk := remaining
		if chunk > MaxTransfer {
			chunk = MaxTransfer
		}
		if err := b.start(instrFIFORead, 0x00, chunk); err != nil {
			return nil, err
		}
		data, err := b.result(chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
		remaining -= chunk
	}
	return out, nil
}
