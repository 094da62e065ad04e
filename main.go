// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// fhtstat - FHT Thermostat Telemetry Decoder
//
// Decodes FHT radio frames received through a CUL stick and presents the
// latest readings per room and metric.

package main

import (
	"os"

	"github.com/Thermoquad/fhtstat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
