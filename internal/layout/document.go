package layout

import (
	"github.com/cpsdecode/cpsdecode/internal/errors"
	"github.com/cpsdecode/cpsdecode/pkg/types"
)

// Document is one raw layout publication.
type Document struct {
	// Vintage is the identifying tag (e.g. "cps_dict_199801")
	Vintage string

	// EffectiveDate is the earliest extract date the layout applies to
	EffectiveDate types.YearMonth

	// Text is the full document body
	Text string
}

// Result is the outcome of parsing one document.
type Result struct {
	// Schema holds every successfully parsed field in document order
	Schema *types.Schema

	// Anomalies holds one PARSE_ANOMALY per candidate line that failed to parse
	Anomalies errors.List

	// CandidateLines is the number of lines accepted by the filter
	CandidateLines int
}

// Parser runs the dialect, filter and line-parsing stages over documents.
type Parser struct {
	selector *DialectSelector
}

// NewParser creates a parser using the given dialect selector.
func NewParser(selector *DialectSelector) *Parser {
	if selector == nil {
		selector = NewDefaultDialectSelector()
	}
	return &Parser{selector: selector}
}

// Parse turns a document into a raw, uncorrected schema. Lines that fail to
// parse are reported as anomalies and skipped; they never abort the document.
func (p *Parser) Parse(doc Document) *Result {
	dialect := p.selector.Select(doc.Vintage)
	lines := FilterLines(p.selector.Truncate(doc.Text), dialect)

	fields := make([]types.FieldDescriptor, 0, len(lines))
	var anomalies errors.List
	for _, line := range lines {
		field, err := ParseLine(line.Text, dialect)
		if err != nil {
			anomalies = append(anomalies, asError(err).WithDetails(map[string]interface{}{
				"vintage": doc.Vintage,
				"line":    line.Number,
				"text":    line.Text,
			}))
			continue
		}
		fields = append(fields, field)
	}

	return &Result{
		Schema: &types.Schema{
			Vintage:       doc.Vintage,
			EffectiveDate: doc.EffectiveDate,
			Dialect:       dialect,
			Fields:        fields,
		},
		Anomalies:      anomalies,
		CandidateLines: len(lines),
	}
}

func asError(err error) *errors.Error {
	if e, ok := err.(*errors.Error); ok {
		return e
	}
	return errors.NewInternalError("parse line", err)
}
