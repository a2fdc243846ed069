//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package bap drives the temperature sensor and power management
// of a battery-assisted passive sensor tag through its control words.
//
// Every operation selects the tag before touching its memory,
// and assumes it has the reader to itself for its whole duration.
package bap
