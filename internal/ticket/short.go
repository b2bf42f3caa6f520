package ticket

import (
	"regexp"
	"strings"
)

// shortMarker delimits the three segments of a short-format payload:
// positional fields, bus reference codes, unique hash.
const shortMarker = "::#:"

var (
	ticketNoRe  = regexp.MustCompile(`^[A-Za-z0-9]{8}$`)
	coachCardRe = regexp.MustCompile(`^[A-Za-z0-9]{6,12}$`)
	busRefRe    = regexp.MustCompile(`^[A-Z]{4}$`)
)

// shortFares are the only fare codes the short grammar accepts.
var shortFares = map[string]bool{"CST": true, "CFL": true, "CFLL": true}

// parseShort runs the fixed-position short grammar.
func (p *Parser) parseShort(trimmed string, res *Result) {
	parts := strings.Split(trimmed, shortMarker)
	if len(parts) < 3 {
		res.Errors = append(res.Errors, "unexpected short format segmentation")
		return
	}

	pos := strings.Split(parts[0], ":")
	at := func(i int) string {
		if i < len(pos) {
			return strings.TrimSpace(pos[i])
		}
		return ""
	}

	f := &ShortFields{
		TicketNo:  at(0),
		Depart:    at(1),
		Return:    at(2),
		Type:      strings.ToLower(at(3)),
		Fare:      at(6),
		CoachCard: at(7),
		// Extra markers can legally appear inside the hash segment.
		Hash: strings.TrimSuffix(strings.Join(parts[2:], shortMarker), ":"),
	}
	res.Short = f

	for _, r := range strings.Split(parts[1], ":") {
		r = strings.TrimSpace(r)
		if r != "" {
			f.Refs = append(f.Refs, r)
		}
	}

	adults, children := at(4), at(5)
	if allDigits(adults) {
		f.Adults = atoiPtr(adults)
	}
	if allDigits(children) {
		f.Children = atoiPtr(children)
	}

	p.validateShort(f, adults, children, res)
}

func (p *Parser) validateShort(f *ShortFields, adults, children string, res *Result) {
	errs := &res.Errors

	if !ticketNoRe.MatchString(f.TicketNo) {
		*errs = append(*errs, "ticketNo: invalid format")
	}
	departOK := validDayMonth(f.Depart)
	if !departOK {
		*errs = append(*errs, "depart: invalid DDMM")
	}

	returnOK := false
	switch f.Type {
	case "single":
		if f.Return != "" {
			*errs = append(*errs, "return: must be empty for single tickets")
		}
	case "return":
		returnOK = validDayMonth(f.Return)
		if !returnOK {
			*errs = append(*errs, "return: invalid DDMM for return ticket")
		} else if departOK && dayMonthOrdinal(f.Return) < dayMonthOrdinal(f.Depart) {
			*errs = append(*errs, "return: must not be before depart")
		}
	default:
		*errs = append(*errs, "type: must be single or return")
	}

	if !allDigits(adults) {
		*errs = append(*errs, "adults: must be integer >= 0")
	}
	if !allDigits(children) {
		*errs = append(*errs, "children: must be integer >= 0")
	}
	if !shortFares[f.Fare] {
		*errs = append(*errs, "fare: must be CST, CFL, or CFLL")
	}
	if f.CoachCard != "" && !coachCardRe.MatchString(f.CoachCard) {
		*errs = append(*errs, "coachCard: invalid format")
	}

	var badRefs []string
	for _, r := range f.Refs {
		if !busRefRe.MatchString(r) {
			badRefs = append(badRefs, r)
		}
	}
	if len(badRefs) > 0 {
		*errs = append(*errs, "refs: invalid bus reference codes: "+strings.Join(badRefs, ","))
	}

	if !hashRe.MatchString(f.Hash) {
		*errs = append(*errs, "hash: invalid hex id")
	}

	// Day-of-use rule: the ticket must cover today, either by its depart
	// leg or, for return tickets, by its return leg. Wall-clock at
	// validation time; callers needing a stable audit verdict persist
	// this error list rather than re-deriving it.
	today := todayDDMM(p.now())
	usableToday := (departOK && f.Depart == today) ||
		(f.Type == "return" && returnOK && f.Return == today)
	if !usableToday {
		*errs = append(*errs, "ticket not valid for today")
	}
}
