package digest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFromReaderIsDeterministic(t *testing.T) {
	payload := []byte("orcamento municipal 2024")

	first, err := FromReader(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := FromReader(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("identical streams produced different digests: %s vs %s", first, second)
	}
	if len(first) != HexLength {
		t.Fatalf("expected %d hex characters, got %d", HexLength, len(first))
	}
}

func TestFromReaderDistinguishesContent(t *testing.T) {
	first, err := FromReader(strings.NewReader("receitas janeiro"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := FromReader(strings.NewReader("receitas fevereiro"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first == second {
		t.Fatalf("distinct streams produced the same digest %s", first)
	}
}

func TestFromFileMatchesFromReader(t *testing.T) {
	payload := bytes.Repeat([]byte("nota fiscal 1234\n"), 4096)
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	fromFile, err := FromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fromReader, err := FromReader(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fromFile != fromReader {
		t.Fatalf("file digest %s does not match stream digest %s", fromFile, fromReader)
	}
}

func TestFromFileMissing(t *testing.T) {
	if _, err := FromFile(filepath.Join(t.TempDir(), "absent.pdf")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestIsValid(t *testing.T) {
	valid, err := FromReader(strings.NewReader("despesas"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{name: "computed digest", value: valid, want: true},
		{name: "empty", value: "", want: false},
		{name: "short", value: "abc123", want: false},
		{name: "non hex", value: strings.Repeat("z", HexLength), want: false},
		{name: "uppercase hex", value: strings.ToUpper(valid), want: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValid(tc.value); got != tc.want {
				t.Fatalf("IsValid(%q) = %v, want %v", tc.value, got, tc.want)
			}
		})
	}
}
