package registry

import (
	"fmt"

	"github.com/cpsdecode/cpsdecode/pkg/types"
)

// Source locates one layout document.
type Source struct {
	// Vintage is the identifying tag, used for dialect selection
	Vintage string `json:"vintage" yaml:"vintage"`

	// EffectiveDate is the first extract date the layout covers
	EffectiveDate types.YearMonth `json:"effective_date" yaml:"effective_date"`

	// Path is the object path of the raw document
	Path string `json:"path" yaml:"path"`
}

var historicalDates = []string{
	"202401", "202301", "202201", "202101", "202001", "201701", "201501",
	"201401", "201301", "201205", "201001", "200901", "200701", "200508",
	"200405", "200301", "199801", "199509", "199506", "199404", "199401",
}

// VintageTag returns the conventional tag for a layout effective on d.
func VintageTag(d types.YearMonth) string {
	return fmt.Sprintf("cps_dict_%s", d)
}

// DefaultSources returns the historical layout documents, newest first,
// stored as <prefix>/<vintage>.txt.
func DefaultSources(prefix string) []Source {
	out := make([]Source, 0, len(historicalDates))
	for _, s := range historicalDates {
		d := types.MustParseYearMonth(s)
		tag := VintageTag(d)
		path := tag + ".txt"
		if prefix != "" {
			path = prefix + "/" + path
		}
		out = append(out, Source{Vintage: tag, EffectiveDate: d, Path: path})
	}
	return out
}
