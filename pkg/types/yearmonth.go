package types

import (
	"fmt"
	"strconv"
)

// YearMonth is a calendar month encoded as year*100 + month (e.g. 199401).
// Values order the same way the dates they represent do, so effective dates
// and extract dates compare with the ordinary integer operators.
type YearMonth int

// ParseYearMonth parses a six-digit YYYYMM string.
func ParseYearMonth(s string) (YearMonth, error) {
	if len(s) != 6 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidYearMonth, s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidYearMonth, s)
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidYearMonth, s)
	}
	ym := YearMonth(v)
	if m := ym.Month(); m < 1 || m > 12 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return ym, nil
}

// MustParseYearMonth parses a YYYYMM string, panicking on error.
func MustParseYearMonth(s string) YearMonth {
	ym, err := ParseYearMonth(s)
	if err != nil {
		panic(err)
	}
	return ym
}

// NewYearMonth builds a YearMonth from its components.
func NewYearMonth(year, month int) YearMonth {
	return YearMonth(year*100 + month)
}

// Year returns the four-digit year.
func (ym YearMonth) Year() int {
	return int(ym) / 100
}

// Month returns the month, 1-12.
func (ym YearMonth) Month() int {
	return int(ym) % 100
}

// String formats the value as YYYYMM.
func (ym YearMonth) String() string {
	return fmt.Sprintf("%06d", int(ym))
}

// MarshalText implements encoding.TextMarshaler so YearMonth values appear as
// "199401" in JSON and YAML.
func (ym YearMonth) MarshalText() ([]byte, error) {
	return []byte(ym.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (ym *YearMonth) UnmarshalText(text []byte) error {
	v, err := ParseYearMonth(string(text))
	if err != nil {
		return err
	}
	*ym = v
	return nil
}
