//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package tagmem

import (
	"github.com/stretchr/testify/require"
	"testing"
)

func TestSignExtend5(t *testing.T) {
	for raw := uint16(0); raw < 32; raw++ {
		got := SignExtend5(raw)
		require.GreaterOrEqual(t, int(got), -16)
		require.LessOrEqual(t, int(got), 15)
		// the low 5 bits survive the round trip
		require.Equal(t, raw, uint16(got)&0x1F)
	}

	var tests = []struct {
		name string
		raw  uint16
		want int16
	}{
		{"zero", 0x00, 0},
		{"max positive", 0x0F, 15},
		{"min negative", 0x10, -16},
		{"minus one", 0x1F, -1},
		{"upper bits ignored", 0xFFE5, 5},
		{"upper bits ignored, negative", 0x03B5, -11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, SignExtend5(tt.raw))
		})
	}
}

func TestEncodeWord(t *testing.T) {
	require.Equal(t, Word{0x00, 0x01}, EncodeWord(1))
	require.Equal(t, Word{0xE6, 0x00}, EncodeWord(0xE600))

	for _, v := range []uint16{0, 1, 0x00FF, 0x0100, 0x1234, 0xFFFF} {
		require.Equal(t, v, DecodeWord(EncodeWord(v)))
	}
}

func TestWords(t *testing.T) {
	require.Equal(t, []uint16{}, Words(nil))
	require.Equal(t, []uint16{0x0102}, Words([]byte{0x01, 0x02, 0x03}))
	require.Equal(t, []uint16{0x03A0, 0xE600}, Words([]byte{0x03, 0xA0, 0xE6, 0x00}))
}
