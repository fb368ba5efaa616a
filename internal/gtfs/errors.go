package gtfs

import "fmt"

// DataFormatError reports a field that could not be parsed. Row is the
// 1-based data row within Table, not counting the header, or 0 when the
// problem spans several rows.
type DataFormatError struct {
	Table string
	Row   int
	Field string
	Value string
	Err   error
}

func (e *DataFormatError) Error() string {
	where := e.Table
	if e.Row > 0 {
		where = fmt.Sprintf("%s row %d", e.Table, e.Row)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: invalid %s %q: %v", where, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("%s: invalid %s %q", where, e.Field, e.Value)
}

func (e *DataFormatError) Unwrap() error {
	return e.Err
}

// IOError reports a file or network failure.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
