// Package export writes fetched ledger records to CSV for offline review.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rajlabs/tallybridge/internal/record"
)

// header is the CSV column order, matching the upload payload plus balances.
var header = []string{
	"guid", "name", "parent", "address", "phone", "email", "pincode",
	"opening_balance", "closing_balance", "latitude", "longitude",
}

// WriteCSV renders records as CSV to w, header row included.
func WriteCSV(w io.Writer, records []record.Record) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i := range records {
		r := &records[i]
		row := []string{
			r.GUID,
			r.Name,
			r.Parent,
			r.Address,
			r.Phone,
			r.Email,
			r.Pincode,
			strconv.FormatFloat(r.OpeningBalance, 'f', 2, 64),
			strconv.FormatFloat(r.ClosingBalance, 'f', 2, 64),
			formatCoord(r.Latitude),
			formatCoord(r.Longitude),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row for %s: %w", r.Name, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// WriteFile writes records to path, creating or truncating it.
func WriteFile(path string, records []record.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	if err := WriteCSV(f, records); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close export file: %w", err)
	}
	return nil
}

// formatCoord renders an optional coordinate, empty when unset.
func formatCoord(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 6, 64)
}
