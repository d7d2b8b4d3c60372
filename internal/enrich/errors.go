package enrich

import (
	"fmt"
	"strings"
)

// MissingColumnError reports required columns absent from a batch at
// enricher entry. It is fatal for the batch but must not abort siblings.
type MissingColumnError struct {
	Columns []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Columns, ", "))
}
