package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/codedrop/codedrop/internal/drop"
)

func TestParseCode(t *testing.T) {
	for _, ok := range []string{"1000", "4821", "9999"} {
		if _, err := parseCode(ok); err != nil {
			t.Errorf("parseCode(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "123", "12345", "abcd", "0999", " 482"} {
		if _, err := parseCode(bad); err == nil {
			t.Errorf("parseCode(%q) should fail", bad)
		}
	}
}

func TestBuildDropRequest(t *testing.T) {
	t.Cleanup(func() { flagDropText = "" })

	flagDropText = "hello"
	req, err := buildDropRequest(nil)
	if err != nil {
		t.Fatal(err)
	}
	if req.Kind != drop.KindText || req.Text != "hello" {
		t.Fatalf("unexpected request %+v", req)
	}
	if _, err := buildDropRequest([]string{"file.txt"}); err == nil {
		t.Fatal("file and --text together should fail")
	}

	flagDropText = ""
	if _, err := buildDropRequest(nil); err == nil {
		t.Fatal("nothing to drop should fail")
	}

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	req, err = buildDropRequest([]string{path})
	if err != nil {
		t.Fatal(err)
	}
	if req.Kind != drop.KindFile || req.Name != "notes.txt" || string(req.Data) != "abc" {
		t.Fatalf("unexpected request %+v", req)
	}
}
