package analysis

import "fmt"

// DataFormatError reports a numeric field that could not be parsed from a raw
// delegation record. Bad data is never silently treated as zero stake; doing
// so would corrupt every concentration metric downstream.
type DataFormatError struct {
	Account string
	Field   string
	Value   string
	Err     error
}

func (e *DataFormatError) Error() string {
	return fmt.Sprintf("malformed %s %q in stake account %s: %v", e.Field, e.Value, e.Account, e.Err)
}

func (e *DataFormatError) Unwrap() error {
	return e.Err
}
