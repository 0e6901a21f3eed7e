// Package pathutil provides centralized path management for downloaded documents.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// MaxComponentBytes is the longest a sanitised path component may be.
const MaxComponentBytes = 200

// PathResolver manages paths below the output directory.
type PathResolver struct {
	outputRoot string
}

// Config represents the configuration for PathResolver.
type Config struct {
	// OutputRoot is the directory documents are saved under (e.g., ./out)
	OutputRoot string
}

// New creates a new PathResolver with the given configuration.
func New(config Config) *PathResolver {
	return &PathResolver{
		outputRoot: filepath.Clean(config.OutputRoot),
	}
}

// GetAccountDir returns the directory for an account.
// Only the name is shortened, so the " - {id}" suffix keeps accounts apart.
// Example: out/Kontorsmateriel - 6110
func (p *PathResolver) GetAccountDir(accountName, accountID string) string {
	id := SanitizeComponent(accountID)
	name := SanitizeComponent(accountName)
	if room := MaxComponentBytes - len(" - ") - len(id); len(name) > room {
		name = strings.TrimRight(truncate(name, max(room, 1)), " .")
		if name == "" {
			name = "_"
		}
	}
	return filepath.Join(p.outputRoot, fmt.Sprintf("%s - %s", name, id))
}

// DocumentName holds the parts a document filename is built from.
type DocumentName struct {
	Date        string // ledger entry date, YYYY-MM-DD
	Amount      decimal.Decimal
	JournalText string
	JournalName string
	LedgerText  string
}

// FileName returns the sanitised filename for a document.
// Example: 2023-04-12_900_Papper_toner - B - Toner.pdf
func (n DocumentName) FileName() string {
	name := fmt.Sprintf("%s_%s_%s - %s - %s",
		SanitizeComponent(n.Date),
		SanitizeComponent(n.Amount.String()),
		SanitizeComponent(n.JournalText),
		SanitizeComponent(n.JournalName),
		SanitizeComponent(n.LedgerText),
	)
	return truncate(name, MaxComponentBytes-len(".pdf")) + ".pdf"
}

// GetDocumentPath returns the file path for a document filed under an account.
func (p *PathResolver) GetDocumentPath(accountName, accountID string, name DocumentName) string {
	return filepath.Join(p.GetAccountDir(accountName, accountID), name.FileName())
}

// SanitizeComponent makes s safe to use as a single path component.
// The result is NFC-normalised, has no separators, reserved characters or
// control characters, and is never empty, "." or "..".
func SanitizeComponent(s string) string {
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == utf8.RuneError:
			b.WriteByte('_')
		case unicode.IsControl(r):
			b.WriteByte('_')
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), " .")
	out = strings.Trim(truncate(out, MaxComponentBytes), " .")
	if out == "" {
		return "_"
	}
	return out
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// EnsureDir creates a directory if it doesn't exist.
// It creates all parent directories as needed (like mkdir -p).
func (p *PathResolver) EnsureDir(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dirPath, err)
	}
	return nil
}

// EnsureParentDir ensures the parent directory of a file exists.
func (p *PathResolver) EnsureParentDir(filePath string) error {
	return p.EnsureDir(filepath.Dir(filePath))
}

// FileExists checks if a file exists.
func (p *PathResolver) FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}
