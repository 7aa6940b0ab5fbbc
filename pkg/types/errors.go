package types

import "errors"

// YearMonth-related errors
var (
	// ErrInvalidYearMonth is returned when a date string is not six digits in YYYYMM form
	ErrInvalidYearMonth = errors.New("invalid YYYYMM date")

	// ErrInvalidMonth is returned when the month component is outside 01-12
	ErrInvalidMonth = errors.New("invalid month")
)
