// SPDX-License-Identifier: MPL-2.0

package modbundle

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// MaxEntrySize bounds any single decompressed bundle entry.
const MaxEntrySize int64 = 16 << 20

type (
	// Opener materializes bundles and checks each module's host_version
	// constraint against HostVersion. An empty or non-semver HostVersion
	// (development builds) skips the check.
	Opener struct {
		HostVersion string
	}

	// Bundle is a materialized module. It is immutable once returned by Open.
	Bundle struct {
		manifest      *Manifest
		types         []*Type
		byName        map[string]*Type
		resources     map[string][]byte
		resourceNames []string
	}
)

// Open materializes a bundle without a host version check.
func Open(data []byte) (*Bundle, error) {
	return Opener{}.Open(data)
}

// Open parses data as a zip bundle, decodes and validates the manifest,
// inlines script files and checks platform contracts.
func (o Opener) Open(data []byte) (*Bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &BundleError{Reason: "not a zip archive", Err: err}
	}

	entries := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name, ok := cleanEntryName(f.Name)
		if !ok {
			return nil, &BundleError{Entry: f.Name, Reason: "entry escapes bundle root"}
		}
		content, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		entries[name] = content
	}

	raw, ok := entries[ManifestFile]
	if !ok {
		return nil, &BundleError{Entry: ManifestFile, Reason: "missing manifest"}
	}
	manifest, err := ParseManifest(raw, ManifestFile)
	if err != nil {
		return nil, err
	}

	if err := o.checkHostVersion(manifest); err != nil {
		return nil, err
	}

	b := &Bundle{
		manifest:  manifest,
		byName:    make(map[string]*Type, len(manifest.Types)),
		resources: make(map[string][]byte),
	}

	var errs []error
	for i := range manifest.Types {
		t := &manifest.Types[i]
		if _, dup := b.byName[t.Name]; dup {
			errs = append(errs, &ContractError{Type: t.Name, Reason: "declared more than once"})
			continue
		}
		if t.Name == AddinBaseType {
			errs = append(errs, &ContractError{Type: t.Name, Reason: "name is reserved by the host"})
			continue
		}
		for j := range t.Methods {
			m := &t.Methods[j]
			if m.ScriptFile == "" {
				continue
			}
			if m.Script != "" {
				errs = append(errs, &ContractError{Type: t.Name, Reason: fmt.Sprintf("method %s sets both script and script_file", m.Name)})
				continue
			}
			name, ok := cleanEntryName(m.ScriptFile)
			body, found := entries[name]
			if !ok || !found {
				errs = append(errs, &ContractError{Type: t.Name, Reason: fmt.Sprintf("method %s: script_file %s not in bundle", m.Name, m.ScriptFile)})
				continue
			}
			m.Script = string(body)
		}
		b.byName[t.Name] = t
		b.types = append(b.types, t)
	}

	if len(errs) == 0 {
		errs = b.checkContracts()
	}
	if len(errs) > 0 {
		return nil, &InvalidManifestError{Errs: errs}
	}

	for name, content := range entries {
		if rel, ok := strings.CutPrefix(name, ResourcePrefix); ok && rel != "" {
			b.resources[rel] = content
			b.resourceNames = append(b.resourceNames, rel)
		}
	}
	slices.Sort(b.resourceNames)

	return b, nil
}

func (o Opener) checkHostVersion(m *Manifest) error {
	if m.HostVersion == "" || o.HostVersion == "" {
		return nil
	}
	host, err := semver.NewVersion(o.HostVersion)
	if err != nil {
		return nil //nolint:nilerr // development builds are not semver
	}
	constraint, err := semver.NewConstraint(m.HostVersion)
	if err != nil {
		// ParseManifest already validated the constraint.
		return &BundleError{Entry: ManifestFile, Reason: "host_version", Err: err}
	}
	if !constraint.Check(host) {
		return &HostVersionError{Module: m.Module, Constraint: m.HostVersion, Host: o.HostVersion}
	}
	return nil
}

func (b *Bundle) checkContracts() []error {
	var errs []error
	for _, t := range b.types {
		if _, err := b.baseChain(t); err != nil {
			errs = append(errs, err)
			continue
		}
		if !t.IsConcrete() {
			continue
		}
		if b.Implements(t, ContractCommand) {
			if m, ok := b.ResolveMethod(t, MethodExecute); !ok || m.Static {
				errs = append(errs, &ContractError{Type: t.Name, Reason: "implements Command but has no instance Execute method"})
			}
		}
	}
	return errs
}

// baseChain returns t's ancestors declared in this module, nearest first.
// The chain stops at the first base the module does not declare.
func (b *Bundle) baseChain(t *Type) ([]*Type, error) {
	var chain []*Type
	seen := map[string]bool{t.Name: true}
	for cur := t; cur.Base != ""; {
		if seen[cur.Base] {
			return nil, &ContractError{Type: t.Name, Reason: "base chain is cyclic at " + cur.Base}
		}
		seen[cur.Base] = true
		next, ok := b.byName[cur.Base]
		if !ok {
			break
		}
		chain = append(chain, next)
		cur = next
	}
	return chain, nil
}

// Manifest returns the decoded manifest. Callers must not modify it.
func (b *Bundle) Manifest() *Manifest {
	return b.manifest
}

// Types returns every declared type in manifest order.
func (b *Bundle) Types() []*Type {
	return slices.Clone(b.types)
}

// LookupType resolves a fully qualified type name.
func (b *Bundle) LookupType(fullName string) (*Type, bool) {
	t, ok := b.byName[fullName]
	return t, ok
}

// ResolveMethod finds name on t or the nearest ancestor declaring it.
func (b *Bundle) ResolveMethod(t *Type, name string) (*Method, bool) {
	if m, ok := t.Method(name); ok {
		return m, true
	}
	chain, err := b.baseChain(t)
	if err != nil {
		return nil, false
	}
	for _, anc := range chain {
		if m, ok := anc.Method(name); ok {
			return m, true
		}
	}
	return nil, false
}

// Implements reports whether t, an ancestor of t, or an interface any of
// them lists declares contract.
func (b *Bundle) Implements(t *Type, contract string) bool {
	seen := make(map[string]bool)
	var visit func(*Type) bool
	visit = func(cur *Type) bool {
		if seen[cur.Name] {
			return false
		}
		seen[cur.Name] = true
		for _, name := range cur.Implements {
			if name == contract {
				return true
			}
			if iface, ok := b.byName[name]; ok && visit(iface) {
				return true
			}
		}
		if base, ok := b.byName[cur.Base]; ok {
			return visit(base)
		}
		return false
	}
	return visit(t)
}

// IsSubtypeOf reports whether base appears in t's base chain. A type is
// never a subtype of itself.
func (b *Bundle) IsSubtypeOf(t *Type, base string) bool {
	seen := map[string]bool{t.Name: true}
	for cur := t; cur.Base != "" && !seen[cur.Base]; {
		if cur.Base == base {
			return true
		}
		seen[cur.Base] = true
		next, ok := b.byName[cur.Base]
		if !ok {
			return false
		}
		cur = next
	}
	return false
}

// IsAddin reports whether t derives from AddinBaseType.
func (b *Bundle) IsAddin(t *Type) bool {
	return b.IsSubtypeOf(t, AddinBaseType)
}

// ResourceNames lists embedded resource names in lexical order.
func (b *Bundle) ResourceNames() []string {
	return slices.Clone(b.resourceNames)
}

// OpenResource returns a reader over the named resource.
func (b *Bundle) OpenResource(name string) (io.ReadCloser, error) {
	content, ok := b.resources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, name)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

// cleanEntryName normalizes a zip entry or script_file path and rejects
// absolute paths and parent traversal.
func cleanEntryName(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, "/") {
		return "", false
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return clean, true
}

func readEntry(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > uint64(MaxEntrySize) {
		return nil, &BundleError{Entry: f.Name, Reason: fmt.Sprintf("entry exceeds %d bytes", MaxEntrySize)}
	}
	rc, err := f.Open()
	if err != nil {
		return nil, &BundleError{Entry: f.Name, Reason: "open entry", Err: err}
	}
	defer func() { _ = rc.Close() }()

	content, err := io.ReadAll(io.LimitReader(rc, MaxEntrySize+1))
	if err != nil {
		return nil, &BundleError{Entry: f.Name, Reason: "read entry", Err: err}
	}
	if int64(len(content)) > MaxEntrySize {
		return nil, &BundleError{Entry: f.Name, Reason: fmt.Sprintf("entry exceeds %d bytes", MaxEntrySize)}
	}
	return content, nil
}
