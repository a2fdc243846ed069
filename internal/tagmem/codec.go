//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package tagmem

import "encoding/binary"

// Word is one 16-bit word of tag memory, in the byte order it travels over the air.
type Word [2]byte

// EncodeWord returns v as a big-endian Word.
func EncodeWord(v uint16) Word {
	var w Word
	binary.BigEndian.PutUint16(w[:], v)
	return w
}

// DecodeWord interprets w as a big-endian unsigned value.
func DecodeWord(w Word) uint16 {
	return binary.BigEndian.Uint16(w[:])
}

// Words splits data into big-endian words, ignoring a trailing odd byte.
func Words(data []byte) []uint16 {
	words := make([]uint16, len(data)/2)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return words
}

// SignExtend5 interprets the low 5 bits of raw as a two's complement value.
// Bits above bit 4 are ignored.
func SignExtend5(raw uint16) int16 {
	if raw&0x0010 != 0 {
		return int16(raw | 0xFFE0)
	}
	return int16(raw & 0x001F)
}
