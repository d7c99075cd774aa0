// internal/ingest/csv.go
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// RawContact is one spreadsheet row before normalization. Validation happens
// in the reconciler; this layer only maps columns.
type RawContact struct {
	Row       int // 1-based data row, for error reporting
	Name      string
	Phone     string
	BirthDate string
}

// ReadContacts parses a contact sheet. The first record is the header and must
// contain "name" and "phone" columns ("birth_date" is optional). A structural
// problem (unreadable CSV, missing required columns) fails the whole batch;
// row-level issues are left for the reconciler.
func ReadContacts(r io.Reader) ([]RawContact, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	nameCol, ok := cols["name"]
	if !ok {
		return nil, fmt.Errorf("missing required column %q", "name")
	}
	phoneCol, ok := cols["phone"]
	if !ok {
		return nil, fmt.Errorf("missing required column %q", "phone")
	}
	birthCol, hasBirth := cols["birth_date"]

	var contacts []RawContact
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+1, err)
		}
		row++

		c := RawContact{Row: row}
		if nameCol < len(record) {
			c.Name = strings.TrimSpace(record[nameCol])
		}
		if phoneCol < len(record) {
			c.Phone = strings.TrimSpace(record[phoneCol])
		}
		if hasBirth && birthCol < len(record) {
			c.BirthDate = strings.TrimSpace(record[birthCol])
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}
