package artifact

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when an artifact for the given run / filename
	// pair does not exist in the underlying store.
	ErrNotFound = errors.New("artifact not found")
	// ErrInvalidName is returned for empty names and names that could escape
	// the run's namespace.
	ErrInvalidName = errors.New("invalid artifact name")
)

// ValidateName rejects run ids and filenames that are empty, contain path
// separators or are dot segments.
func ValidateName(runID, filename string) error {
	for _, n := range []string{runID, filename} {
		if n == "" || n == "." || n == ".." || strings.ContainsAny(n, `/\`) || strings.ContainsRune(n, 0) {
			return fmt.Errorf("%w: %q", ErrInvalidName, n)
		}
	}
	return nil
}
