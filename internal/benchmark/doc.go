// SPDX-License-Identifier: MPL-2.0

// Package benchmark provides benchmarks for PGO profile generation.
// These benchmarks cover the hot paths of modhost:
//   - manifest parsing and bundle materialization
//   - capability scanning
//   - key-in matching and registry dispatch
//   - unchanged reloads (fingerprint only)
//   - the virtual shell and Lua runtimes
//   - the end-to-end locate, load and dispatch pipeline
//
// To generate a PGO profile, run:
//
//	go test -run '^$' -bench . -cpuprofile default.pgo ./internal/benchmark
package benchmark
