// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// Besides the Must* filesystem helpers it builds module bundles in memory
// (BuildBundle) and on disk (WriteBundle) so tests never depend on checked-in
// binary fixtures.
package testutil
