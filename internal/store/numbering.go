package store

import "fmt"

const tokenNumberPad = 3

// FormatTokenNumber renders an issued sequence value as the customer-visible
// number, e.g. prefix "I" and value 7 become "I007". Values beyond three
// digits widen naturally.
func FormatTokenNumber(prefix string, value int) string {
	return fmt.Sprintf("%s%0*d", prefix, tokenNumberPad, value)
}

// NextNumber advances a queue counter. maxNumber <= 0 means unbounded; when
// the increment would pass maxNumber the counter wraps back to 1 and the
// second return value reports the wrap so callers can log it.
func NextNumber(current, maxNumber int) (int, bool) {
	next := current + 1
	if maxNumber > 0 && next > maxNumber {
		return 1, true
	}
	return next, false
}
