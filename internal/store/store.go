package store

// Store persists completed benchmark records.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if a record doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRecord atomically writes rec, overwriting any record with the
	// same ID.
	SaveRecord(rec *Record) error

	// LoadRecord returns the record with the given ID or ErrNotFound.
	LoadRecord(id string) (*Record, error)

	// ListRecords returns all readable records, oldest first. Corrupted
	// records are skipped.
	ListRecords() ([]Record, error)

	// DeleteRecord removes a record and its directory.
	DeleteRecord(id string) error
}

// ErrNotFound is returned when a requested record does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing record.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return "record not found: " + e.ID
	}
	return "record not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
