// Package model defines the persisted scan ledger entities.
package model

import "time"

// ScanUse is one use of a ticket: a single timestamped scan event.
type ScanUse struct {
	At time.Time `json:"at"`
}

// ScanRecord is the ledger entry for one dedup key. It is created on the
// first scan of a key, mutated by every subsequent scan of the same key,
// and evicted once ExpiresAt passes (records never outlive the calendar
// day they were created in).
type ScanRecord struct {
	ID        string         `json:"id"`
	Key       string         `json:"key"`
	Text      string         `json:"text"`
	Parsed    map[string]any `json:"parsed,omitempty"`
	Count     int            `json:"count"`
	FirstSeen time.Time      `json:"firstSeen"`
	LastSeen  time.Time      `json:"lastSeen"`
	Uses      []ScanUse      `json:"uses"`
	CreatedAt time.Time      `json:"createdAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

// WasDuplicate reports whether this record has seen more than one scan.
func (r *ScanRecord) WasDuplicate() bool {
	return r.Count > 1
}

// ScanReceipt is what a caller gets back after recording a scan: the
// up-to-date usage statistics for the ticket's dedup key.
type ScanReceipt struct {
	Key          string      `json:"key"`
	WasDuplicate bool        `json:"wasDuplicate"`
	Count        int         `json:"count"`
	FirstSeen    time.Time   `json:"firstSeen"`
	LastSeen     time.Time   `json:"lastSeen"`
	RecentUses   []time.Time `json:"recentUses"`
}
