package broker

import (
	"encoding/json"
	"fmt"
	"os"
)

// CredentialEntry is one row of the "clients" persistence file described in
// spec §6: `{password}` keyed by client_id.
type CredentialEntry struct {
	Password string `json:"password"`
}

// CredentialStore is the static map of client_id -> password loaded at
// startup and consulted on every Connect.
type CredentialStore struct {
	entries map[string]CredentialEntry
}

// NewCredentialStore wraps an already-loaded client_id -> credential map.
func NewCredentialStore(entries map[string]CredentialEntry) *CredentialStore {
	if entries == nil {
		entries = make(map[string]CredentialEntry)
	}
	return &CredentialStore{entries: entries}
}

// LoadCredentialStore reads the "clients" JSON file named in spec §6:
// a map of client_id to {password}.
func LoadCredentialStore(path string) (*CredentialStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("broker: loading credential store: %w", err)
	}
	var entries map[string]CredentialEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("broker: parsing credential store: %w", err)
	}
	return NewCredentialStore(entries), nil
}

// Authenticate reports whether password matches clientID's stored
// credential. A client_id absent from the store is always rejected.
func (c *CredentialStore) Authenticate(clientID, password string) bool {
	entry, ok := c.entries[clientID]
	if !ok {
		return false
	}
	return entry.Password == password
}
