// Package ticket parses and validates scanned ticket payloads.
//
// A payload is the raw text recovered from a QR code: a colon-delimited
// token stream in one of two wire formats. Parsing is a total function;
// malformed input never panics or returns a Go error, it yields a Result
// whose Errors list describes every violated rule.
package ticket

import (
	"strings"
	"time"
)

// Kind discriminates the wire format of a parsed payload.
type Kind string

const (
	// KindNone means the payload was empty.
	KindNone Kind = ""
	// KindQIT covers the two tag variants (QIT, QTR) sharing the
	// token-driven grammar.
	KindQIT Kind = "QIT"
	// KindShort is the fixed-position marker-delimited format.
	KindShort Kind = "short"
)

// TypeSingle and TypeReturn are the two journey types. The QIT grammar
// carries them uppercase, the short grammar lowercase.
const (
	TypeSingle = "SINGLE"
	TypeReturn = "RETURN"
)

// QITFields holds the decoded fields of a QIT-like payload. Date fields
// keep both the raw token (for display, even when rejected) and the
// decoded time (nil when the token failed a range or calendar check).
type QITFields struct {
	Flight   string `json:"flight"`
	RRDL     string `json:"rrdl,omitempty"`
	Type     string `json:"type"`
	Fare     string `json:"fare"`
	Purchase string `json:"purchase,omitempty"`
	Depart   string `json:"depart"`
	Return   string `json:"return,omitempty"`
	Adults   *int   `json:"adults,omitempty"`
	Children *int   `json:"children,omitempty"`
	QCode    string `json:"qcode"`
	Hash     string `json:"hash"`

	PurchaseAt *time.Time `json:"purchase_at,omitempty"`
	DepartAt   *time.Time `json:"depart_at,omitempty"`
	ReturnAt   *time.Time `json:"return_at,omitempty"`
}

// ShortFields holds the decoded fields of a short-format payload.
type ShortFields struct {
	TicketNo  string   `json:"ticketNo"`
	Depart    string   `json:"depart"`
	Return    string   `json:"return,omitempty"`
	Type      string   `json:"type"`
	Adults    *int     `json:"adults,omitempty"`
	Children  *int     `json:"children,omitempty"`
	Fare      string   `json:"fare"`
	CoachCard string   `json:"coachCard,omitempty"`
	Refs      []string `json:"refs"`
	Hash      string   `json:"hash"`
}

// Result is the outcome of parsing one payload. Exactly one of QIT/Short
// is set when Kind identifies a grammar and enough structure survived to
// recover fields. Errors is ordered by check sequence; empty means valid.
type Result struct {
	Raw    string       `json:"raw"`
	Kind   Kind         `json:"kind"`
	QIT    *QITFields   `json:"qit,omitempty"`
	Short  *ShortFields `json:"short,omitempty"`
	Errors []string     `json:"errors"`
}

// Valid reports whether the payload passed every validation rule.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

// Hash returns the payload's embedded unique id, or "" if none was
// recovered. The scan ledger prefers this over the raw text as dedup key.
func (r *Result) Hash() string {
	switch {
	case r.QIT != nil:
		return r.QIT.Hash
	case r.Short != nil:
		return r.Short.Hash
	}
	return ""
}

// FieldMap flattens the recovered fields into a JSON-friendly map, the
// shape the ledger persists and API clients receive. Nil when no fields
// were recovered.
func (r *Result) FieldMap() map[string]any {
	switch {
	case r.QIT != nil:
		f := r.QIT
		m := map[string]any{
			"flight": f.Flight,
			"type":   f.Type,
			"fare":   f.Fare,
			"depart": f.Depart,
			"qcode":  f.QCode,
			"hash":   f.Hash,
		}
		if f.RRDL != "" {
			m["rrdl"] = f.RRDL
		}
		if f.Purchase != "" {
			m["purchase"] = f.Purchase
		}
		if f.Return != "" {
			m["return"] = f.Return
		}
		if f.Adults != nil {
			m["adults"] = *f.Adults
		}
		if f.Children != nil {
			m["children"] = *f.Children
		}
		return m
	case r.Short != nil:
		f := r.Short
		m := map[string]any{
			"ticketNo": f.TicketNo,
			"depart":   f.Depart,
			"type":     f.Type,
			"fare":     f.Fare,
			"refs":     f.Refs,
			"hash":     f.Hash,
		}
		if f.Return != "" {
			m["return"] = f.Return
		}
		if f.Adults != nil {
			m["adults"] = *f.Adults
		}
		if f.Children != nil {
			m["children"] = *f.Children
		}
		if f.CoachCard != "" {
			m["coachCard"] = f.CoachCard
		}
		return m
	}
	return nil
}

// Parser validates payloads against wall-clock-dependent rules (the
// two-day proximity window, the open-return relaxation, the short-format
// day-of-use rule). Now is injectable for deterministic tests.
type Parser struct {
	Now func() time.Time
}

func (p *Parser) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Parse decomposes and validates a raw payload. It never fails: the
// result always carries the raw text, whatever fields were recoverable,
// and an ordered list of violated rules.
func (p *Parser) Parse(raw string) Result {
	trimmed := strings.TrimSpace(raw)
	res := Result{Raw: trimmed, Errors: []string{}}
	if trimmed == "" {
		res.Errors = append(res.Errors, "Empty payload")
		return res
	}

	// A trailing separator colon is decoder noise, not structure.
	trimmed = strings.TrimSuffix(trimmed, ":")

	if hasQITTag(trimmed) {
		res.Kind = KindQIT
		p.parseQIT(trimmed, &res)
		return res
	}

	res.Kind = KindShort
	if !strings.Contains(trimmed, shortMarker) {
		res.Errors = append(res.Errors, "missing '::#:' markers for short format")
		return res
	}
	p.parseShort(trimmed, &res)
	return res
}

var defaultParser = &Parser{}

// Parse parses with the default wall-clock parser.
func Parse(raw string) Result {
	return defaultParser.Parse(raw)
}
