package validation

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/bilbao-transit/gtfsjson/internal/logging"
)

// Kind classifies a finding.
type Kind string

const (
	KindMissingReference Kind = "missing_reference"
	KindDataFormat       Kind = "data_format"
	KindMissingData      Kind = "missing_data"
	KindIO               Kind = "io"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one reported problem. Count is the number of offending rows or
// trips, or 0 when the finding is not a tally.
type Finding struct {
	Severity Severity
	Kind     Kind
	Check    string
	Message  string
	Count    int
}

func (f Finding) String() string {
	return f.Message
}

// Report accumulates the findings of one check. Checks return their own
// Report and the caller merges them.
type Report struct {
	Errors   []Finding
	Warnings []Finding
}

func (r *Report) addError(kind Kind, check string, count int, format string, args ...any) {
	r.Errors = append(r.Errors, Finding{
		Severity: SeverityError,
		Kind:     kind,
		Check:    check,
		Message:  fmt.Sprintf(format, args...),
		Count:    count,
	})
}

func (r *Report) addWarning(kind Kind, check string, count int, format string, args ...any) {
	r.Warnings = append(r.Warnings, Finding{
		Severity: SeverityWarning,
		Kind:     kind,
		Check:    check,
		Message:  fmt.Sprintf(format, args...),
		Count:    count,
	})
}

// Merge appends other's findings after r's.
func (r Report) Merge(other Report) Report {
	return Report{
		Errors:   append(append([]Finding(nil), r.Errors...), other.Errors...),
		Warnings: append(append([]Finding(nil), r.Warnings...), other.Warnings...),
	}
}

// Result is the verdict of a validation run.
type Result struct {
	Errors    []Finding
	Warnings  []Finding
	Passed    bool
	Recovered bool
}

func newResult(r Report, recovered bool) Result {
	return Result{
		Errors:    r.Errors,
		Warnings:  r.Warnings,
		Passed:    len(r.Errors) == 0,
		Recovered: recovered,
	}
}

// WriteSummary prints every error, then every warning, then the verdict.
func WriteSummary(w io.Writer, result Result) error {
	var err error
	printf := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	printf("Validation Summary\n")
	if len(result.Errors) > 0 {
		printf("\nFound %d error(s):\n", len(result.Errors))
		for _, f := range result.Errors {
			printf("  - %s\n", f.Message)
		}
	}
	if len(result.Warnings) > 0 {
		printf("\nFound %d warning(s):\n", len(result.Warnings))
		for _, f := range result.Warnings {
			printf("  - %s\n", f.Message)
		}
	}

	switch {
	case !result.Passed:
		printf("\nValidation failed\n")
	case len(result.Warnings) > 0:
		printf("\nValidation passed with warnings\n")
	default:
		printf("\nAll validation checks passed\n")
	}
	return err
}

// LogSummary logs every finding at its severity.
func LogSummary(logger *slog.Logger, result Result) {
	for _, f := range result.Errors {
		logger.Error(f.Message, slog.String("check", f.Check), slog.String("kind", string(f.Kind)), slog.Int("count", f.Count))
	}
	for _, f := range result.Warnings {
		logging.LogWarning(logger, f.Message, slog.String("check", f.Check), slog.String("kind", string(f.Kind)), slog.Int("count", f.Count))
	}
	logging.LogOperation(logger, "validation_finished",
		slog.Bool("passed", result.Passed),
		slog.Int("errors", len(result.Errors)),
		slog.Int("warnings", len(result.Warnings)))
}
