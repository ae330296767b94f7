// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"strings"
	"testing"
)

const testSchema = `
#Doc: {
	name:  string & =~"^[a-z]+$"
	count: *1 | int & >=0
	tags?: [...string]
}
`

type testDoc struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags,omitempty"`
}

func TestParseAndDecode(t *testing.T) {
	t.Parallel()

	result, err := ParseAndDecodeString[testDoc](testSchema, []byte(`name: "alpha"
tags: ["x", "y"]
`), "#Doc", WithFilename("doc.cue"))
	if err != nil {
		t.Fatalf("ParseAndDecode() error: %v", err)
	}
	if result.Value.Name != "alpha" {
		t.Errorf("Name = %q, want %q", result.Value.Name, "alpha")
	}
	if result.Value.Count != 1 {
		t.Errorf("Count = %d, want default 1", result.Value.Count)
	}
	if len(result.Value.Tags) != 2 {
		t.Errorf("Tags = %v, want 2 entries", result.Value.Tags)
	}
}

func TestParseAndDecode_ValidationErrorHasPath(t *testing.T) {
	t.Parallel()

	_, err := ParseAndDecodeString[testDoc](testSchema, []byte(`name: "Alpha"`), "#Doc", WithFilename("doc.cue"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "doc.cue") {
		t.Errorf("error should name the file, got: %v", err)
	}
	if !strings.Contains(err.Error(), "name") {
		t.Errorf("error should name the field, got: %v", err)
	}
}

func TestParseAndDecode_SyntaxError(t *testing.T) {
	t.Parallel()

	_, err := ParseAndDecodeString[testDoc](testSchema, []byte(`name: "unterminated`), "#Doc")
	if err == nil {
		t.Fatal("expected syntax error")
	}
	if !strings.Contains(err.Error(), "<input>") {
		t.Errorf("error should fall back to <input> filename, got: %v", err)
	}
}

func TestParseAndDecode_MissingDefinition(t *testing.T) {
	t.Parallel()

	_, err := ParseAndDecodeString[testDoc](testSchema, []byte(`name: "a"`), "#Missing")
	if err == nil || !strings.Contains(err.Error(), "internal error") {
		t.Fatalf("expected internal error for missing definition, got: %v", err)
	}
}

func TestParseAndDecode_FileTooLarge(t *testing.T) {
	t.Parallel()

	_, err := ParseAndDecodeString[testDoc](testSchema, []byte(`name: "abc"`), "#Doc", WithMaxFileSize(4))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("error = %v, want ErrFileTooLarge", err)
	}
	var tooLarge *FileTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("error should be *FileTooLargeError, got %T", err)
	}
	if tooLarge.Max != 4 {
		t.Errorf("Max = %d, want 4", tooLarge.Max)
	}
}

func TestFormatError(t *testing.T) {
	t.Parallel()

	if FormatError(nil, "x.cue") != nil {
		t.Error("FormatError(nil) should be nil")
	}

	err := FormatError(errors.New("boom"), "x.cue")
	if err == nil || !strings.Contains(err.Error(), "x.cue") || !strings.Contains(err.Error(), "boom") {
		t.Errorf("non-CUE error should be wrapped with the file path, got: %v", err)
	}
}

func TestFormatPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path []string
		want string
	}{
		{"empty", nil, ""},
		{"single", []string{"module"}, "module"},
		{"nested", []string{"auto_reload", "debounce"}, "auto_reload.debounce"},
		{"index", []string{"types", "2", "methods", "0", "name"}, "types[2].methods[0].name"},
		{"leading digits stay plain", []string{"0"}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := formatPath(tt.path); got != tt.want {
				t.Errorf("formatPath(%v) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
