package batch

import (
	"fmt"
	"path"
	"regexp"
	"strconv"

	"github.com/cpsdecode/cpsdecode/internal/errors"
	"github.com/cpsdecode/cpsdecode/pkg/types"
)

// centuryPivot splits two-digit years: below it they are 20xx, otherwise 19xx.
const centuryPivot = 50

// ExtractDate derives the survey month from an extract's file name using a
// pattern with named groups "year" and "month". Two-digit years below 50 are
// taken as 20xx.
func ExtractDate(re *regexp.Regexp, objectPath string) (types.YearMonth, error) {
	name := path.Base(objectPath)
	m := re.FindStringSubmatch(name)
	if m == nil {
		return 0, errors.NewRegistryError(errors.CodeInvalidDate,
			fmt.Sprintf("no survey date in extract name %q", name)).
			WithDetails(map[string]interface{}{"extract": objectPath})
	}

	var yearText, monthText string
	for i, group := range re.SubexpNames() {
		switch group {
		case "year":
			yearText = m[i]
		case "month":
			monthText = m[i]
		}
	}

	year, err := strconv.Atoi(yearText)
	if err != nil {
		return 0, errors.NewRegistryError(errors.CodeInvalidDate,
			fmt.Sprintf("invalid year %q in extract name %q", yearText, name))
	}
	if len(yearText) == 2 {
		if year < centuryPivot {
			year += 2000
		} else {
			year += 1900
		}
	}

	ym, err := types.ParseYearMonth(fmt.Sprintf("%04d%s", year, monthText))
	if err != nil {
		return 0, errors.Wrap(errors.ErrCategoryRegistry, errors.CodeInvalidDate,
			fmt.Sprintf("invalid survey date in extract name %q", name), err)
	}
	return ym, nil
}
