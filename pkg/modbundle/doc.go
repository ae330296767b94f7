// SPDX-License-Identifier: MPL-2.0

// Package modbundle reads and writes module bundles.
//
// A bundle is a zip archive (extension .modpkg) holding:
//
//	module.cue          type manifest, validated against #Module
//	resources/...       named resources; command tables end in .xml
//	scripts/...         optional method bodies referenced by script_file
//
// Open materializes an immutable *Bundle from raw bytes. The bundle exposes
// the manifest's types, resolves inherited methods and contracts across the
// module's base chains, and serves embedded resources by name.
//
// Platform contracts are plain names a type lists in implements (Command,
// StaticMethodHost) or reaches through its base chain (ModHost.Addin).
// Open rejects manifests that declare a contract without the methods it
// requires.
package modbundle
