package domain

import (
	"errors"
	"fmt"
)

var ErrBadDate = errors.New("bad date")

// DateKey identifies one calendar cell. Keeping it a struct instead of
// the wire's "YYYY-M-D" string makes the month filter exact: the string
// prefix "2024-1" would also match "2024-11".
type DateKey struct {
	Year  int
	Month int
	Day   int
}

func NewDateKey(year, month, day int) (DateKey, error) {
	if year < 1 || month < 1 || month > 12 || day < 1 || day > 31 {
		return DateKey{}, fmt.Errorf("%w: %d-%d-%d", ErrBadDate, year, month, day)
	}
	return DateKey{Year: year, Month: month, Day: day}, nil
}

// String renders the wire form used by the calendar UI, without zero
// padding.
func (k DateKey) String() string {
	return fmt.Sprintf("%d-%d-%d", k.Year, k.Month, k.Day)
}

func (k DateKey) InMonth(year, month int) bool {
	return k.Year == year && k.Month == month
}
