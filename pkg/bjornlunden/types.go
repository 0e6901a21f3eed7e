// Package bjornlunden provides a Björn Lundén accounting API client and types.
package bjornlunden

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// ID is an identifier the API returns either as a JSON number or a JSON string.
type ID string

// UnmarshalJSON accepts numbers and strings.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", string(data), err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the id as text.
func (id ID) String() string {
	return string(id)
}

// Company represents a company connected to the API client.
type Company struct {
	Name      string `json:"name"`
	PublicKey string `json:"publicKey"`
}

// CompanyDetails represents the response from /details.
// Only a few fields are typed; everything is kept in Raw.
type CompanyDetails struct {
	Name      string         `json:"name"`
	OrgNumber string         `json:"orgNumber"`
	Raw       map[string]any `json:"-"`
}

// UnmarshalJSON keeps the full object alongside the typed fields.
func (d *CompanyDetails) UnmarshalJSON(data []byte) error {
	type plain CompanyDetails
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &p.Raw); err != nil {
		return err
	}
	*d = CompanyDetails(p)
	return nil
}

// Account represents an account in the chart of accounts.
type Account struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// JournalEntry represents a journal entry (verifikation).
type JournalEntry struct {
	ID               ID            `json:"id"`
	JournalID        string        `json:"journalId,omitempty"`
	JournalName      string        `json:"journalName"`
	JournalEntryText string        `json:"journalEntryText"`
	EntryDate        string        `json:"entryDate,omitempty"` // YYYY-MM-DD
	DocumentIDs      []ID          `json:"documentIds"`
	LedgerEntries    []LedgerEntry `json:"ledgerEntries"`
}

// HasDocuments reports whether the entry references at least one document.
func (j JournalEntry) HasDocuments() bool {
	return len(j.DocumentIDs) > 0
}

// LedgerEntry represents a single debit or credit line in a journal entry.
type LedgerEntry struct {
	AccountID ID              `json:"accountId"`
	Date      string          `json:"date"` // YYYY-MM-DD
	Amount    decimal.Decimal `json:"amount"`
	Text      string          `json:"text"`
}

// DocumentMetadata describes an attached document.
type DocumentMetadata struct {
	ID          ID     `json:"id"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Created     string `json:"created,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// JournalEntriesResponse represents the response from /journal/entry/batch.
type JournalEntriesResponse struct {
	Data []JournalEntry `json:"data"`
}

// ErrorResponse represents an error body returned by the API.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	Message          string `json:"message,omitempty"`
}
