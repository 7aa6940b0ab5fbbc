package schema

import (
	"fmt"

	"github.com/cpsdecode/cpsdecode/internal/errors"
	"github.com/cpsdecode/cpsdecode/pkg/types"
)

// DefaultToleratedInvertedFields lists fields allowed to have start > end.
func DefaultToleratedInvertedFields() []string {
	return []string{"PXFNTVTY"}
}

// Report is the outcome of validating one schema.
type Report struct {
	Vintage    string
	Warnings   errors.List
	Violations errors.List
}

// Valid reports whether the schema may be registered.
func (r *Report) Valid() bool {
	return len(r.Violations) == 0
}

// Err returns the violations as an error, or nil when the schema is valid.
func (r *Report) Err() error {
	if r.Valid() {
		return nil
	}
	return errors.Wrap(errors.ErrCategorySchema, errors.CodeIntegrityViolation,
		fmt.Sprintf("schema %s failed validation", r.Vintage), r.Violations)
}

// Validator checks the byte grid of a schema.
type Validator struct {
	tolerated map[string]bool
}

// NewValidator creates a validator that tolerates inverted ranges on the
// named fields only.
func NewValidator(toleratedInverted []string) *Validator {
	tolerated := make(map[string]bool, len(toleratedInverted))
	for _, name := range toleratedInverted {
		tolerated[name] = true
	}
	return &Validator{tolerated: tolerated}
}

// Validate checks s in field order. Warnings never block registration;
// violations do.
func (v *Validator) Validate(s *types.Schema) *Report {
	r := &Report{Vintage: s.Vintage}

	if len(s.Fields) == 0 {
		r.Violations = append(r.Violations, errors.New(errors.ErrCategorySchema, errors.CodeEmptySchema,
			"schema has no fields").WithDetails(map[string]interface{}{"vintage": s.Vintage}))
		return r
	}

	seen := make(map[string]bool, len(s.Fields))
	for i, f := range s.Fields {
		if !f.IsFiller() {
			if seen[f.Name] {
				r.Warnings = append(r.Warnings, v.issue(false, s, f, "duplicate field name"))
			}
			seen[f.Name] = true
		}

		if !f.IsFiller() && f.StartPos <= f.EndPos && f.Length != f.Span() {
			r.Warnings = append(r.Warnings, v.issue(false, s, f,
				fmt.Sprintf("length %d disagrees with range %d-%d", f.Length, f.StartPos, f.EndPos)))
		}

		if f.StartPos > f.EndPos {
			r.add(v.issue(!v.tolerated[f.Name], s, f,
				fmt.Sprintf("start %d after end %d", f.StartPos, f.EndPos)))
		}

		if i == 0 {
			if f.StartPos != 1 {
				r.add(v.issue(true, s, f, fmt.Sprintf("first field starts at %d, not 1", f.StartPos)))
			}
			continue
		}

		prev := s.Fields[i-1]
		if f.StartPos == prev.EndPos+1 {
			continue
		}
		kind := "gap"
		if f.StartPos <= prev.EndPos {
			kind = "overlap"
		}
		fatal := !(f.IsFiller() || prev.IsFiller() || v.tolerated[f.Name] || v.tolerated[prev.Name])
		r.add(v.issue(fatal, s, f, fmt.Sprintf("%s after %s: expected start %d, got %d",
			kind, prev.Name, prev.EndPos+1, f.StartPos)))
	}

	return r
}

func (r *Report) add(e *errors.Error) {
	if e.Recoverable {
		r.Warnings = append(r.Warnings, e)
	} else {
		r.Violations = append(r.Violations, e)
	}
}

func (v *Validator) issue(fatal bool, s *types.Schema, f types.FieldDescriptor, msg string) *errors.Error {
	details := map[string]interface{}{
		"vintage":   s.Vintage,
		"field":     f.Name,
		"start_pos": f.StartPos,
		"end_pos":   f.EndPos,
	}
	if fatal {
		return errors.NewIntegrityViolation(f.Name + ": " + msg).WithDetails(details)
	}
	return errors.NewIntegrityWarning(f.Name + ": " + msg).WithDetails(details)
}

// ValidateDictionary checks fields read back from an infix dictionary. Filler
// fields are not written to dictionaries, so gaps are allowed; a start before
// byte 1, an inverted range on an untolerated field or an overlap with the
// preceding field is a violation.
func (v *Validator) ValidateDictionary(s *types.Schema) *Report {
	r := &Report{Vintage: s.Vintage}

	if len(s.Fields) == 0 {
		r.Violations = append(r.Violations, errors.New(errors.ErrCategorySchema, errors.CodeEmptySchema,
			"dictionary has no fields").WithDetails(map[string]interface{}{"vintage": s.Vintage}))
		return r
	}

	for i, f := range s.Fields {
		if f.StartPos < 1 {
			r.add(v.issue(true, s, f, fmt.Sprintf("starts at %d, before byte 1", f.StartPos)))
		}
		if f.StartPos > f.EndPos {
			r.add(v.issue(!v.tolerated[f.Name], s, f,
				fmt.Sprintf("start %d after end %d", f.StartPos, f.EndPos)))
		}
		if i == 0 {
			continue
		}
		prev := s.Fields[i-1]
		if f.StartPos <= prev.EndPos {
			fatal := !(v.tolerated[f.Name] || v.tolerated[prev.Name])
			r.add(v.issue(fatal, s, f, fmt.Sprintf("overlap after %s: expected start after %d, got %d",
				prev.Name, prev.EndPos, f.StartPos)))
		}
	}
	return r
}
