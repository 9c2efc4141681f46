// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

// Build information, set at build time using -ldflags.
var (
	Version = "0.0.0-dev"
	Commit  = "none"
	Date    = "unknown"
)
