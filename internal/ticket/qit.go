package ticket

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// qitSep divides the coded section of a QIT-like payload from the
// trailing unique id section.
const qitSep = "::#:::#:"

// qitTags are the reserved leading literals of the two grammar variants.
var qitTags = []string{"QIT:", "QTR:"}

var (
	flightRe = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	rrdlRe   = regexp.MustCompile(`^RRDL[0-9]+$`)
	fareRe   = regexp.MustCompile(`^[A-Z]{3,4}$`)
	qcodeRe  = regexp.MustCompile(`^Q[A-Za-z0-9]+$`)
	hashRe   = regexp.MustCompile(`^[0-9a-fA-F]{16,32}$`)
	paxRe    = regexp.MustCompile(`^[0-9]+;[0-9]+$`)
)

func hasQITTag(s string) bool {
	for _, tag := range qitTags {
		if strings.HasPrefix(s, tag) {
			return true
		}
	}
	return false
}

// cursor walks a token stream with single-token lookahead. Optional
// fields are consumed through takeIf predicates instead of fixed indices
// so both tag variants share one walk.
type cursor struct {
	toks []string
	pos  int
}

func newCursor(toks []string) *cursor {
	return &cursor{toks: toks}
}

func (c *cursor) peek() string {
	if c.pos >= len(c.toks) {
		return ""
	}
	return c.toks[c.pos]
}

func (c *cursor) next() string {
	t := c.peek()
	if c.pos < len(c.toks) {
		c.pos++
	}
	return t
}

// takeIf consumes and returns the next token when pred accepts it.
func (c *cursor) takeIf(pred func(string) bool) (string, bool) {
	t := c.peek()
	if t != "" && pred(t) {
		c.pos++
		return t, true
	}
	return "", false
}

// laterDates counts the date-shaped tokens beyond the current one.
func (c *cursor) laterDates() int {
	n := 0
	for i := c.pos + 1; i < len(c.toks); i++ {
		if isDateToken(c.toks[i]) {
			n++
		}
	}
	return n
}

// Lookahead predicates, one per optional field.

// isRefCode matches on the RRDL prefix alone: a malformed code like
// RRDLxx must still land in the rrdl slot and fail rrdlRe there, not
// leak into the type/fare/date slots.
func isRefCode(t string) bool    { return strings.HasPrefix(t, "RRDL") }
func isTicketType(t string) bool { u := strings.ToUpper(t); return u == TypeSingle || u == TypeReturn }
func isFareCode(t string) bool   { return fareRe.MatchString(t) }
func isDateToken(t string) bool  { return (len(t) == 6 || len(t) == 10) && allDigits(t) }
func isPaxPair(t string) bool    { return paxRe.MatchString(t) }

// isPaxNumeral accepts a bare passenger count. Date-shaped numerals are
// excluded so an absent pax section cannot swallow the depart token.
func isPaxNumeral(t string) bool { return allDigits(t) && !isDateToken(t) }

// parseQIT runs the token-driven grammar shared by the QIT and QTR tags.
func (p *Parser) parseQIT(trimmed string, res *Result) {
	sepIdx := strings.Index(trimmed, qitSep)
	if sepIdx == -1 {
		res.Errors = append(res.Errors, "missing QCODE separator '::#:::#:'")
		return
	}
	coded := trimmed[:sepIdx]
	unique := strings.TrimSuffix(trimmed[sepIdx+len(qitSep):], ":")

	// The qcode is the last token of the coded section; everything
	// before it is the field prefix.
	qcode := ""
	prefix := coded
	if lastColon := strings.LastIndex(coded, ":"); lastColon != -1 {
		qcode = coded[lastColon+1:]
		prefix = coded[:lastColon]
	}

	// parts[0] is the tag literal, parts[1] the mandatory flight slot;
	// the rest is the optional-token stream (empty separator slots
	// dropped).
	parts := strings.Split(prefix, ":")
	f := &QITFields{QCode: qcode, Hash: unique}
	res.QIT = f
	if len(parts) > 1 {
		f.Flight = parts[1]
	}
	var toks []string
	if len(parts) > 2 {
		for _, t := range parts[2:] {
			if t != "" {
				toks = append(toks, t)
			}
		}
	}

	c := newCursor(toks)
	f.RRDL, _ = c.takeIf(isRefCode)
	if t, ok := c.takeIf(isTicketType); ok {
		f.Type = strings.ToUpper(t)
	}
	f.Fare, _ = c.takeIf(isFareCode)
	takePax := func() {
		if pair, ok := c.takeIf(isPaxPair); ok {
			ad, ch, _ := strings.Cut(pair, ";")
			f.Adults = atoiPtr(ad)
			f.Children = atoiPtr(ch)
			return
		}
		if t, ok := c.takeIf(isPaxNumeral); ok {
			f.Adults = atoiPtr(t)
		}
		if t, ok := c.takeIf(isPaxNumeral); ok {
			f.Children = atoiPtr(t)
		}
	}

	// A date token here is the purchase timestamp only when enough later
	// date tokens remain to fill every journey leg: depart, plus return
	// for RETURN tickets. Otherwise the date belongs to a leg.
	legs := 1
	if f.Type == TypeReturn {
		legs = 2
	}
	if isDateToken(c.peek()) && c.laterDates() >= legs {
		f.Purchase = c.next()
	}
	takePax()
	f.Depart, _ = c.takeIf(isDateToken)
	// The pax section may also sit between the two legs.
	if f.Adults == nil {
		takePax()
	}
	f.Return, _ = c.takeIf(isDateToken)

	if f.Purchase != "" {
		f.PurchaseAt = decodeDateTime(f.Purchase)
	}
	if f.Depart != "" {
		f.DepartAt = decodeDateTime(f.Depart)
	}
	if f.Return != "" {
		f.ReturnAt = decodeDateTime(f.Return)
	}

	p.validateQIT(f, res)
}

func (p *Parser) validateQIT(f *QITFields, res *Result) {
	errs := &res.Errors

	if !flightRe.MatchString(f.Flight) {
		*errs = append(*errs, "flight: invalid code")
	}
	if f.RRDL != "" && !rrdlRe.MatchString(f.RRDL) {
		*errs = append(*errs, "rrdl: invalid RRDL code")
	}
	if f.Type != TypeSingle && f.Type != TypeReturn {
		*errs = append(*errs, "type: must be SINGLE or RETURN")
	}
	if f.Fare == "" {
		*errs = append(*errs, "fare: expected CST/CFL/CFLL-like code")
	}
	if f.Purchase != "" && f.PurchaseAt == nil {
		*errs = append(*errs, "purchase: invalid DDMMYYHHMM")
	}
	if f.DepartAt == nil {
		*errs = append(*errs, "depart: invalid DDMMYYHHMM")
	}
	if !qcodeRe.MatchString(f.QCode) {
		*errs = append(*errs, "qcode: invalid format")
	}
	if !hashRe.MatchString(f.Hash) {
		*errs = append(*errs, "hash: invalid hex id")
	}

	// Cross-field rules.
	if f.PurchaseAt != nil && f.DepartAt != nil && f.PurchaseAt.After(*f.DepartAt) {
		*errs = append(*errs, "purchase: must not be after depart")
	}
	switch f.Type {
	case TypeSingle:
		if f.Return != "" {
			*errs = append(*errs, "return must be empty for SINGLE tickets")
		}
	case TypeReturn:
		if f.ReturnAt == nil {
			*errs = append(*errs, "return: invalid or missing DDMMYYHHMM for RETURN ticket")
		} else if f.DepartAt != nil && f.ReturnAt.Before(*f.DepartAt) {
			*errs = append(*errs, "return: must be after or equal to depart")
		}
	}

	// Proximity rule: tickets are for near-term travel.
	now := p.now()
	if f.DepartAt != nil && f.DepartAt.Sub(now) > 2*24*time.Hour {
		*errs = append(*errs, "depart: more than 2 days away from now")
	}

	// Open-return relaxation: an unexpired return leg stands on its own,
	// so depart-side failures are retroactively dropped. Must run last.
	if f.Type == TypeReturn && f.ReturnAt != nil && !f.ReturnAt.Before(now) {
		kept := (*errs)[:0]
		for _, e := range *errs {
			if !strings.HasPrefix(e, "depart:") {
				kept = append(kept, e)
			}
		}
		*errs = kept
	}
}

func atoiPtr(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
