// SPDX-License-Identifier: MPL-2.0

package modbundle

import (
	_ "embed"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/invowk/modhost/pkg/cueutil"
)

const (
	// ManifestFile is the manifest's path inside a bundle.
	ManifestFile = "module.cue"

	// ResourcePrefix is the directory holding named resources.
	ResourcePrefix = "resources/"

	// BundleExt is the file extension for module bundles.
	BundleExt = ".modpkg"

	// ContractCommand marks a class whose instances are commands.
	ContractCommand = "Command"
	// ContractStaticHost marks a class whose static methods may be commands.
	ContractStaticHost = "StaticMethodHost"
	// AddinBaseType is the platform base type of addins. Modules may not
	// declare a type with this name.
	AddinBaseType = "ModHost.Addin"

	// InvocableAttribute tags a static method as a command.
	InvocableAttribute = "Invocable"
	// TextType is the parameter type that carries unparsed text.
	TextType = "string"

	// MethodExecute is required by ContractCommand.
	MethodExecute = "Execute"
	// MethodInit is required by addins.
	MethodInit = "Init"

	KindClass     Kind = "class"
	KindInterface Kind = "interface"

	RuntimeVirtual Runtime = "virtual"
	RuntimeLua     Runtime = "lua"
)

//go:embed module_schema.cue
var moduleSchema string

type (
	// Kind is a type's kind.
	Kind string

	// Runtime names the script engine that runs a type's method bodies.
	Runtime string

	// Manifest is the decoded module.cue.
	Manifest struct {
		Module      string `json:"module"`
		Version     string `json:"version,omitempty"`
		HostVersion string `json:"host_version,omitempty"`
		Description string `json:"description,omitempty"`
		Types       []Type `json:"types"`
	}

	// Type is one exported type of a module.
	Type struct {
		// Name is the fully qualified name, e.g. "Acme.Tools.Greet".
		Name       string   `json:"name"`
		Kind       Kind     `json:"kind"`
		Abstract   bool     `json:"abstract"`
		Base       string   `json:"base,omitempty"`
		Implements []string `json:"implements,omitempty"`
		Runtime    Runtime  `json:"runtime"`
		// Constructor is a script run before any instance method.
		Constructor string   `json:"constructor,omitempty"`
		Methods     []Method `json:"methods,omitempty"`
	}

	// Method is one method of a Type. Script holds the body; when the
	// manifest names a script_file, Open replaces Script with its content.
	Method struct {
		Name       string   `json:"name"`
		Static     bool     `json:"static"`
		Attributes []string `json:"attributes,omitempty"`
		Params     []Param  `json:"params,omitempty"`
		Script     string   `json:"script,omitempty"`
		ScriptFile string   `json:"script_file,omitempty"`
	}

	// Param is a method parameter.
	Param struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
)

// ParseManifest decodes and schema-validates module.cue content.
// Contract checks that need the whole type set run in Open.
func ParseManifest(data []byte, filename string) (*Manifest, error) {
	if filename == "" {
		filename = ManifestFile
	}
	result, err := cueutil.ParseAndDecodeString[Manifest](
		moduleSchema,
		data,
		"#Module",
		cueutil.WithFilename(filename),
	)
	if err != nil {
		return nil, err
	}

	m := result.Value
	if m.Version != "" {
		if _, err := semver.StrictNewVersion(m.Version); err != nil {
			return nil, &InvalidManifestError{Errs: []error{&ContractError{Reason: "version " + m.Version + ": " + err.Error()}}}
		}
	}
	if m.HostVersion != "" {
		if _, err := semver.NewConstraint(m.HostVersion); err != nil {
			return nil, &InvalidManifestError{Errs: []error{&ContractError{Reason: "host_version " + m.HostVersion + ": " + err.Error()}}}
		}
	}
	return m, nil
}

// ShortName returns the last dot-separated segment of the type name.
func (t *Type) ShortName() string {
	if i := strings.LastIndexByte(t.Name, '.'); i >= 0 {
		return t.Name[i+1:]
	}
	return t.Name
}

// IsConcrete reports whether instances of t can be created.
func (t *Type) IsConcrete() bool {
	return t.Kind == KindClass && !t.Abstract
}

// Method returns the method declared directly on t.
func (t *Type) Method(name string) (*Method, bool) {
	for i := range t.Methods {
		if t.Methods[i].Name == name {
			return &t.Methods[i], true
		}
	}
	return nil, false
}

// Declares reports whether contract appears in t's own implements list.
func (t *Type) Declares(contract string) bool {
	return slices.Contains(t.Implements, contract)
}

// HasAttribute reports whether m carries attr.
func (m *Method) HasAttribute(attr string) bool {
	return slices.Contains(m.Attributes, attr)
}

// TakesSingleText reports whether m has exactly one parameter of TextType.
func (m *Method) TakesSingleText() bool {
	return len(m.Params) == 1 && m.Params[0].Type == TextType
}
