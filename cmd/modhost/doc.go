// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the modhost CLI: loading a module bundle, listing and
// dispatching its commands, serving key-ins with auto-reload, and packing
// module directories into bundles.
package cmd
