package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nx-scanner/internal/model"
)

// ErrEmptyKey is returned when a scan carries no usable dedup key.
var ErrEmptyKey = eris.New("ledger: empty dedup key")

// Config tunes the ledger service.
type Config struct {
	// PageSize caps how many records ListToday returns.
	PageSize int `yaml:"page_size" mapstructure:"page_size"`
	// RecentUses caps how many use timestamps a receipt carries.
	RecentUses int `yaml:"recent_uses" mapstructure:"recent_uses"`
}

const (
	defaultPageSize   = 1000
	defaultRecentUses = 10
)

// Ledger is the scan ledger service: it derives dedup keys, records
// scans through the store, and shapes receipts for callers.
type Ledger struct {
	store      Store
	pageSize   int
	recentUses int
	now        func() time.Time
}

// New creates a Ledger backed by store.
func New(store Store, cfg Config) *Ledger {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	recentUses := cfg.RecentUses
	if recentUses <= 0 {
		recentUses = defaultRecentUses
	}
	return &Ledger{store: store, pageSize: pageSize, recentUses: recentUses, now: time.Now}
}

// DeriveKey picks the dedup key for a scan: the parsed hash when
// present, then the parsed short-format ticket id, then the raw text.
func DeriveKey(text string, parsed map[string]any) string {
	for _, field := range []string{"hash", "ticketNo"} {
		if v, ok := parsed[field].(string); ok {
			if k := strings.TrimSpace(v); k != "" {
				return k
			}
		}
	}
	return strings.TrimSpace(text)
}

// Record persists one scan of text and returns the up-to-date receipt
// for its dedup key. Scans with no derivable key are rejected.
func (l *Ledger) Record(ctx context.Context, text string, parsed map[string]any) (*model.ScanReceipt, error) {
	key := DeriveKey(text, parsed)
	if key == "" {
		return nil, ErrEmptyKey
	}

	rec, err := l.store.RecordScan(ctx, key, text, parsed, l.now())
	if err != nil {
		return nil, eris.Wrap(err, "ledger: record scan")
	}

	zap.L().Debug("scan recorded",
		zap.String("key", key),
		zap.Int("count", rec.Count),
		zap.Bool("duplicate", rec.WasDuplicate()))

	return l.receipt(rec), nil
}

// ListToday returns today's records, newest activity first.
func (l *Ledger) ListToday(ctx context.Context) ([]*model.ScanRecord, error) {
	records, err := l.store.ListToday(ctx, l.pageSize)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: list today")
	}
	return records, nil
}

// ClearAll wipes the ledger and reports how many records were removed.
func (l *Ledger) ClearAll(ctx context.Context) (int64, error) {
	n, err := l.store.ClearAll(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "ledger: clear all")
	}
	zap.L().Info("ledger cleared", zap.Int64("deleted", n))
	return n, nil
}

func (l *Ledger) receipt(rec *model.ScanRecord) *model.ScanReceipt {
	uses := rec.Uses
	if len(uses) > l.recentUses {
		uses = uses[len(uses)-l.recentUses:]
	}
	recent := make([]time.Time, 0, len(uses))
	for _, u := range uses {
		recent = append(recent, u.At)
	}
	return &model.ScanReceipt{
		Key:          rec.Key,
		WasDuplicate: rec.WasDuplicate(),
		Count:        rec.Count,
		FirstSeen:    rec.FirstSeen,
		LastSeen:     rec.LastSeen,
		RecentUses:   recent,
	}
}
