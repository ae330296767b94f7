// SPDX-License-Identifier: MPL-2.0

package keyintable

import (
	"errors"
	"strings"
	"testing"
)

const sampleTable = `<?xml version="1.0" encoding="utf-8"?>
<KeyinTree xmlns="urn:modhost:keyin-tree:1">
  <RootKeyinTable ID="root">
    <Keyword CommandWord="place">
      <KeyinHandler Keyin="place line" Function="Acme.Tools.Draw.PlaceLine"/>
      <KeyinHandler Keyin="pl" Function="Acme.Tools.Draw.PlaceLine"/>
    </Keyword>
  </RootKeyinTable>
  <KeyinHandlers>
    <KeyinHandler Keyin="  spaced  " Function=" Acme.Tools.Draw.Spaced "/>
    <KeyinHandler Function="Acme.Tools.Draw.NoKeyin"/>
    <KeyinHandler Keyin="no function"/>
  </KeyinHandlers>
  <other:KeyinHandler xmlns:other="urn:other" Keyin="foreign" Function="X.Y"/>
</KeyinTree>`

func TestParse(t *testing.T) {
	t.Parallel()

	table, err := Parse(strings.NewReader(sampleTable), DefaultNamespace)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	want := []Entry{
		{Keyin: "place line", Function: "Acme.Tools.Draw.PlaceLine"},
		{Keyin: "pl", Function: "Acme.Tools.Draw.PlaceLine"},
		{Keyin: "spaced", Function: "Acme.Tools.Draw.Spaced"},
	}
	if len(table.Entries) != len(want) {
		t.Fatalf("Entries = %+v, want %+v", table.Entries, want)
	}
	for i := range want {
		if table.Entries[i] != want[i] {
			t.Errorf("Entries[%d] = %+v, want %+v", i, table.Entries[i], want[i])
		}
	}

	if len(table.Skipped) != 2 {
		t.Fatalf("Skipped = %+v, want 2", table.Skipped)
	}
	if table.Skipped[0].Reason != "missing Keyin" || table.Skipped[1].Reason != "missing Function" {
		t.Errorf("Skipped reasons = %+v", table.Skipped)
	}
}

func TestParse_AnyNamespace(t *testing.T) {
	t.Parallel()

	table, err := Parse(strings.NewReader(sampleTable), "")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(table.Entries) != 4 {
		t.Errorf("empty namespace should accept foreign handlers, got %d entries", len(table.Entries))
	}
}

func TestParse_OtherNamespaceOnly(t *testing.T) {
	t.Parallel()

	table, err := Parse(strings.NewReader(sampleTable), "urn:other")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(table.Entries) != 1 || table.Entries[0].Keyin != "foreign" {
		t.Errorf("Entries = %+v, want only the foreign handler", table.Entries)
	}
}

func TestParse_Malformed(t *testing.T) {
	t.Parallel()

	_, err := Parse(strings.NewReader(`<KeyinTree><KeyinHandler Keyin="a"`), DefaultNamespace)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("error = %v, want ErrMalformed", err)
	}
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	table, err := Parse(strings.NewReader(""), DefaultNamespace)
	if err != nil {
		t.Fatalf("Parse(empty) error: %v", err)
	}
	if len(table.Entries) != 0 {
		t.Errorf("Entries = %+v, want none", table.Entries)
	}
}

func TestSplitFunction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in         string
		wantType   string
		wantMethod string
		wantOK     bool
	}{
		{"Foo.Bar", "Foo", "Bar", true},
		{"Acme.Tools.Draw.PlaceLine", "Acme.Tools.Draw", "PlaceLine", true},
		{"NoDot", "", "", false},
		{".Leading", "", "", false},
		{"Trailing.", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			typ, method, ok := SplitFunction(tt.in)
			if typ != tt.wantType || method != tt.wantMethod || ok != tt.wantOK {
				t.Errorf("SplitFunction(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.in, typ, method, ok, tt.wantType, tt.wantMethod, tt.wantOK)
			}
		})
	}
}
