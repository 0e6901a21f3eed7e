package pathutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

func TestGetDocumentPath(t *testing.T) {
	p := New(Config{OutputRoot: "out/"})

	name := DocumentName{
		Date:        "2023-04-12",
		Amount:      decimal.RequireFromString("900.00"),
		JournalText: "Papper/toner",
		JournalName: "B",
		LedgerText:  "Toner",
	}

	got := p.GetDocumentPath("Kontorsmateriel", "6110", name)
	expected := filepath.Join("out", "Kontorsmateriel - 6110", "2023-04-12_900_Papper_toner - B - Toner.pdf")
	if got != expected {
		t.Errorf("GetDocumentPath() = %q, expected %q", got, expected)
	}

	if again := p.GetDocumentPath("Kontorsmateriel", "6110", name); again != got {
		t.Errorf("GetDocumentPath() is not deterministic: %q != %q", again, got)
	}
}

func TestAmountFormatting(t *testing.T) {
	tests := []struct {
		amount   string
		expected string
	}{
		{"1500", "1500"},
		{"-99.50", "-99.5"},
		{"0.01", "0.01"},
	}

	for _, tt := range tests {
		name := DocumentName{Date: "2023-01-01", Amount: decimal.RequireFromString(tt.amount), JournalText: "a", JournalName: "b", LedgerText: "c"}
		expected := "2023-01-01_" + tt.expected + "_a - b - c.pdf"
		if got := name.FileName(); got != expected {
			t.Errorf("FileName() with amount %s = %q, expected %q", tt.amount, got, expected)
		}
	}
}

func TestSanitizeComponent(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "Kontorsmateriel", "Kontorsmateriel"},
		{"slash", "a/b", "a_b"},
		{"backslash", `a\b`, "a_b"},
		{"reserved", `x:*?"<>|y`, "x_______y"},
		{"control", "a\nb\tc", "a_b_c"},
		{"dot dot", "..", "_"},
		{"dot", ".", "_"},
		{"empty", "", "_"},
		{"spaces and dots", "  .name. ", "name"},
		{"traversal", "../../etc/passwd", "_.._etc_passwd"},
		{"nfd to nfc", "Fo\u0308retag", "F\u00f6retag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeComponent(tt.input); got != tt.expected {
				t.Errorf("SanitizeComponent(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeComponentNeverEscapes(t *testing.T) {
	inputs := []string{"..", "../x", "x/..", "/", "\\..\\", " .. ", "...", "\x00"}

	for _, in := range inputs {
		got := SanitizeComponent(in)
		if strings.ContainsAny(got, `/\`) || got == ".." || got == "." || got == "" {
			t.Errorf("SanitizeComponent(%q) = %q, not a safe component", in, got)
		}
	}
}

func TestSanitizeComponentTruncatesOnRuneBoundary(t *testing.T) {
	in := strings.Repeat("ö", 150) // 300 bytes

	got := SanitizeComponent(in)
	if len(got) > MaxComponentBytes {
		t.Errorf("len = %d, expected <= %d", len(got), MaxComponentBytes)
	}
	if !utf8.ValidString(got) {
		t.Errorf("SanitizeComponent() produced invalid UTF-8")
	}

	name := DocumentName{Date: "2023-01-01", JournalText: in, JournalName: in, LedgerText: in}
	file := name.FileName()
	if len(file) > MaxComponentBytes || !strings.HasSuffix(file, ".pdf") || !utf8.ValidString(file) {
		t.Errorf("FileName() = %q (%d bytes), expected a valid name within %d bytes", file, len(file), MaxComponentBytes)
	}
}

func TestAccountDirStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	p := New(Config{OutputRoot: root})

	dir := p.GetAccountDir("..", "..")
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		t.Fatalf("filepath.Rel() error = %v", err)
	}
	if strings.HasPrefix(rel, "..") || strings.Contains(rel, string(filepath.Separator)) {
		t.Errorf("GetAccountDir() = %q escapes or nests below %q", dir, root)
	}
}

func TestAccountDirKeepsIDForLongNames(t *testing.T) {
	p := New(Config{OutputRoot: "out"})
	name := strings.Repeat("Kundfordringar ", 14)

	first := p.GetAccountDir(name, "1510")
	second := p.GetAccountDir(name, "1511")
	if first == second {
		t.Fatalf("accounts 1510 and 1511 share directory %q", first)
	}

	for id, dir := range map[string]string{"1510": first, "1511": second} {
		base := filepath.Base(dir)
		if !strings.HasSuffix(base, " - "+id) {
			t.Errorf("GetAccountDir() = %q, expected suffix %q", base, " - "+id)
		}
		if len(base) > MaxComponentBytes {
			t.Errorf("len(%q) = %d, expected at most %d", base, len(base), MaxComponentBytes)
		}
		if !strings.HasPrefix(base, "Kundfordringar") {
			t.Errorf("GetAccountDir() = %q lost the account name", base)
		}
	}
}

func TestEnsureParentDir(t *testing.T) {
	root := t.TempDir()
	p := New(Config{OutputRoot: root})

	path := p.GetDocumentPath("Kassa", "1910", DocumentName{Date: "2023-01-01", JournalText: "a", JournalName: "b", LedgerText: "c"})
	if err := p.EnsureParentDir(path); err != nil {
		t.Fatalf("EnsureParentDir() error = %v", err)
	}

	info, err := os.Stat(filepath.Dir(path))
	if err != nil || !info.IsDir() {
		t.Errorf("account directory was not created: %v", err)
	}
	if p.FileExists(path) {
		t.Error("FileExists() = true before the file was written")
	}
}
