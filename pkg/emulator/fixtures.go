package emulator

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixtures is the data served by the emulator.
type Fixtures struct {
	ClientID     string            `yaml:"client_id"`
	ClientSecret string            `yaml:"client_secret"`
	Companies    []Company         `yaml:"companies"`
	Tenants      map[string]Tenant `yaml:"tenants"` // keyed by company public key
}

// Company is a connected company.
type Company struct {
	Name      string `yaml:"name" json:"name"`
	PublicKey string `yaml:"public_key" json:"publicKey"`
}

// Tenant holds the data visible with one user key.
type Tenant struct {
	Details        map[string]any `yaml:"details"`
	Accounts       []Account      `yaml:"accounts"`
	JournalEntries []JournalEntry `yaml:"journal_entries"`
	Documents      []Document     `yaml:"documents"`
}

// Account is a chart-of-accounts entry.
type Account struct {
	ID   json.Number `yaml:"id" json:"id"`
	Name string      `yaml:"name" json:"name"`
}

// JournalEntry is a journal entry as returned by the batch endpoint.
type JournalEntry struct {
	ID               json.Number   `yaml:"id" json:"id"`
	JournalName      string        `yaml:"journal_name" json:"journalName"`
	JournalEntryText string        `yaml:"journal_entry_text" json:"journalEntryText"`
	EntryDate        string        `yaml:"entry_date" json:"entryDate"`
	DocumentIDs      []string      `yaml:"document_ids" json:"documentIds"`
	LedgerEntries    []LedgerEntry `yaml:"ledger_entries" json:"ledgerEntries"`
}

// LedgerEntry is one line of a journal entry.
type LedgerEntry struct {
	AccountID json.Number `yaml:"account_id" json:"accountId"`
	Date      string      `yaml:"date" json:"date"`
	Amount    json.Number `yaml:"amount" json:"amount"`
	Text      string      `yaml:"text" json:"text"`
}

// Document is an attached document and its PDF rendering.
type Document struct {
	ID          string `yaml:"id" json:"id"`
	FileName    string `yaml:"file_name" json:"fileName"`
	ContentType string `yaml:"content_type" json:"contentType"`
	Created     string `yaml:"created" json:"created,omitempty"`
	Content     string `yaml:"content" json:"-"`
}

// PDF returns the bytes served by /document/asPdf/{id}.
func (d Document) PDF() []byte {
	if d.Content != "" {
		return []byte(d.Content)
	}
	return []byte(fmt.Sprintf("%%PDF-1.4\n%% %s\n%%%%EOF\n", d.ID))
}

// LoadFixtures reads fixtures from a YAML file.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}

	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}
	return &f, nil
}

// DemoFixtures returns a small data set: one company with two accounts and
// three journal entries, two of which reference documents.
func DemoFixtures() *Fixtures {
	return &Fixtures{
		ClientID:     "demo-client",
		ClientSecret: "demo-secret",
		Companies: []Company{
			{Name: "Demo AB", PublicKey: "demo-key"},
			{Name: "Other AB", PublicKey: "other-key"},
		},
		Tenants: map[string]Tenant{
			"demo-key": {
				Details: map[string]any{"name": "Demo AB", "orgNumber": "556000-0000"},
				Accounts: []Account{
					{ID: "1930", Name: "Företagskonto"},
					{ID: "6110", Name: "Kontorsmateriel"},
				},
				JournalEntries: []JournalEntry{
					{
						ID:               "1",
						JournalName:      "A",
						JournalEntryText: "Pennor",
						EntryDate:        "2023-02-01",
						DocumentIDs:      []string{"doc-1"},
						LedgerEntries: []LedgerEntry{
							{AccountID: "6110", Date: "2023-02-01", Amount: "125.50", Text: "Pennor"},
							{AccountID: "1930", Date: "2023-02-01", Amount: "-125.50", Text: "Betalning"},
						},
					},
					{
						ID:               "2",
						JournalName:      "A",
						JournalEntryText: "Utan underlag",
						EntryDate:        "2023-03-01",
						LedgerEntries: []LedgerEntry{
							{AccountID: "1930", Date: "2023-03-01", Amount: "10", Text: "Ränta"},
						},
					},
					{
						ID:               "3",
						JournalName:      "B",
						JournalEntryText: "Papper/toner",
						EntryDate:        "2023-04-12",
						DocumentIDs:      []string{"doc-2", "doc-3"},
						LedgerEntries: []LedgerEntry{
							{AccountID: "6110", Date: "2023-04-12", Amount: "900", Text: "Toner"},
						},
					},
				},
				Documents: []Document{
					{ID: "doc-1", FileName: "kvitto1.jpg", ContentType: "image/jpeg", Created: "2023-02-01"},
					{ID: "doc-2", FileName: "faktura.pdf", ContentType: "application/pdf", Created: "2023-04-12"},
					{ID: "doc-3", FileName: "kvitto2.png", ContentType: "image/png", Created: "2023-04-12"},
				},
			},
		},
	}
}

func (t Tenant) document(id string) (Document, bool) {
	for _, d := range t.Documents {
		if d.ID == id {
			return d, true
		}
	}
	return Document{}, false
}
