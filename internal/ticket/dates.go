package ticket

import "time"

// decodeDateTime decodes a QIT date token. A 10-digit token is
// DDMMYYHHMM; a 6-digit token is DDMMYY with the time defaulting to
// midnight. The year is 2000+YY. Returns nil when any component is out
// of range or the resulting calendar date does not exist (e.g. 31 April).
func decodeDateTime(tok string) *time.Time {
	if !allDigits(tok) || (len(tok) != 6 && len(tok) != 10) {
		return nil
	}
	dd := atoi2(tok[0:2])
	mm := atoi2(tok[2:4])
	yy := atoi2(tok[4:6])
	hh, mi := 0, 0
	if len(tok) == 10 {
		hh = atoi2(tok[6:8])
		mi = atoi2(tok[8:10])
	}
	if dd < 1 || dd > 31 || mm < 1 || mm > 12 || hh > 23 || mi > 59 {
		return nil
	}
	year := 2000 + yy
	t := time.Date(year, time.Month(mm), dd, hh, mi, 0, 0, time.Local)
	// time.Date normalizes overflow (31 Apr -> 1 May); a shifted day or
	// month means the calendar date was invalid.
	if t.Day() != dd || int(t.Month()) != mm {
		return nil
	}
	return &t
}

// validDayMonth reports whether a short-format DDMM token is plausible.
// Only range checks: the short grammar carries no year, so no
// month-length check is possible.
func validDayMonth(tok string) bool {
	if len(tok) != 4 || !allDigits(tok) {
		return false
	}
	dd := atoi2(tok[0:2])
	mm := atoi2(tok[2:4])
	return dd >= 1 && dd <= 31 && mm >= 1 && mm <= 12
}

// dayMonthOrdinal maps DDMM to month*100+day for calendar-naive ordering
// of short-format legs within a year.
func dayMonthOrdinal(tok string) int {
	return atoi2(tok[2:4])*100 + atoi2(tok[0:2])
}

// todayDDMM renders t's local date in the short-format DDMM encoding.
func todayDDMM(t time.Time) string {
	return t.Format("0201")
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// atoi2 converts a two-digit numeric substring. Callers guarantee digits.
func atoi2(s string) int {
	return int(s[0]-'0')*10 + int(s[1]-'0')
}
