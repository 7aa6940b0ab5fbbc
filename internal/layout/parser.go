package layout

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cpsdecode/cpsdecode/internal/errors"
	"github.com/cpsdecode/cpsdecode/pkg/types"
)

var (
	// name, length, description, start, end
	standardFieldPattern = regexp.MustCompile(`^(\w+\d?)\s+(\d+)\s+(.+?)\s+\(?(\d+)\s*-\s*(\d+)\)?\s*$`)

	// name, length, start
	legacyFieldPattern = regexp.MustCompile(`^D\s+(\w+\d?)\s+(\d+)\s+(\d+)`)
)

// ParseLine parses one filtered line into a field descriptor. A line that the
// filter accepted but the capture pattern rejects yields a PARSE_ANOMALY.
func ParseLine(line string, dialect types.Dialect) (types.FieldDescriptor, error) {
	switch dialect {
	case types.DialectStandard:
		return parseStandard(line)
	case types.DialectLegacy1998:
		return parseLegacy(line)
	default:
		return types.FieldDescriptor{}, errors.NewInternalError(
			fmt.Sprintf("unknown dialect %q", dialect), nil)
	}
}

func parseStandard(line string) (types.FieldDescriptor, error) {
	m := standardFieldPattern.FindStringSubmatch(line)
	if m == nil {
		return types.FieldDescriptor{}, errors.NewParseAnomaly("line does not match field pattern")
	}

	nums, err := atoiAll(m[2], m[4], m[5])
	if err != nil {
		return types.FieldDescriptor{}, errors.NewParseAnomaly(err.Error())
	}

	return types.FieldDescriptor{
		Name:        m[1],
		Length:      nums[0],
		Description: strings.TrimSpace(m[3]),
		StartPos:    nums[1],
		EndPos:      nums[2],
	}, nil
}

func parseLegacy(line string) (types.FieldDescriptor, error) {
	m := legacyFieldPattern.FindStringSubmatch(line)
	if m == nil {
		return types.FieldDescriptor{}, errors.NewParseAnomaly("line does not match legacy field pattern")
	}

	nums, err := atoiAll(m[2], m[3])
	if err != nil {
		return types.FieldDescriptor{}, errors.NewParseAnomaly(err.Error())
	}

	length, start := nums[0], nums[1]
	return types.FieldDescriptor{
		Name:     m[1],
		Length:   length,
		StartPos: start,
		EndPos:   start + length - 1,
	}, nil
}

func atoiAll(values ...string) ([]int, error) {
	out := make([]int, len(values))
	for i, v := range values {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", v)
		}
		out[i] = n
	}
	return out, nil
}
