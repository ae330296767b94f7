// SPDX-License-Identifier: MPL-2.0

// Package keyintable parses command tables: XML resources whose
// KeyinHandler elements map an invocation name (Keyin) to a target
// function (Function, "Fully.Qualified.Type.Method").
package keyintable

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// DefaultNamespace is the XML namespace of command table elements.
	DefaultNamespace = "urn:modhost:keyin-tree:1"

	// HandlerElement is the local name of an entry element.
	HandlerElement = "KeyinHandler"

	keyinAttr    = "Keyin"
	functionAttr = "Function"
)

// ErrMalformed wraps XML syntax errors.
var ErrMalformed = errors.New("malformed command table")

type (
	// Entry is one well-formed KeyinHandler.
	Entry struct {
		Keyin    string
		Function string
	}

	// Skipped records a KeyinHandler that lacked a required attribute.
	Skipped struct {
		Offset int64
		Reason string
	}

	// Table is the parse result. Entries keep document order.
	Table struct {
		Entries []Entry
		Skipped []Skipped
	}
)

// Parse reads a command table. KeyinHandler elements may appear at any
// depth; only those in namespace are considered. An empty namespace
// accepts handlers in any namespace. Entries with a missing or blank
// attribute are recorded in Skipped rather than failing the parse.
func Parse(r io.Reader, namespace string) (*Table, error) {
	dec := xml.NewDecoder(r)
	table := &Table{}

	for {
		offset := dec.InputOffset()
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return table, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != HandlerElement {
			continue
		}
		if namespace != "" && start.Name.Space != namespace {
			continue
		}

		var entry Entry
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case keyinAttr:
				entry.Keyin = strings.TrimSpace(attr.Value)
			case functionAttr:
				entry.Function = strings.TrimSpace(attr.Value)
			}
		}

		switch {
		case entry.Keyin == "":
			table.Skipped = append(table.Skipped, Skipped{Offset: offset, Reason: "missing Keyin"})
		case entry.Function == "":
			table.Skipped = append(table.Skipped, Skipped{Offset: offset, Reason: "missing Function"})
		default:
			table.Entries = append(table.Entries, entry)
		}
	}
}

// SplitFunction splits "Type.Name.Method" at its last dot into the type
// name and the bare method name. It reports false when either side would
// be empty.
func SplitFunction(function string) (typeName, method string, ok bool) {
	i := strings.LastIndexByte(function, '.')
	if i <= 0 || i == len(function)-1 {
		return "", "", false
	}
	return function[:i], function[i+1:], true
}
