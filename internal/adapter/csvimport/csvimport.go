// Package csvimport parses the bulk upload files for members and inventory.
package csvimport

import (
	"encoding/csv"
	"errors"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rl1809/reservation/internal/core/domain"
)

var (
	MemberHeaders    = []string{"name", "surname", "booking_count", "date_joined"}
	InventoryHeaders = []string{"title", "description", "remaining_count", "expiration_date"}
)

const expirationLayout = "02-01-2006"

var dateJoinedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func errInvalidFormat() error {
	return domain.BadRequest("Invalid file format. Please upload a CSV file.")
}

func errHeaders() error {
	return domain.BadRequest("CSV headers do not match expected format.")
}

func errConversion() error {
	return domain.BadRequest("CSV file contains data conversion errors. Please check the format of the data.")
}

func errEmpty() error {
	return domain.BadRequest("No records found in the CSV file.")
}

// CheckFilename rejects uploads that are not named *.csv.
func CheckFilename(name string) error {
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return errInvalidFormat()
	}
	return nil
}

// ParseMembers reads a member upload. Rows without a name are skipped.
func ParseMembers(r io.Reader) ([]domain.Member, error) {
	rows, err := readRows(r, MemberHeaders)
	if err != nil {
		return nil, err
	}

	members := make([]domain.Member, 0, len(rows))
	for _, row := range rows {
		name := strings.TrimSpace(row[0])
		if name == "" {
			continue
		}

		count, err := strconv.Atoi(strings.TrimSpace(row[2]))
		if err != nil {
			return nil, errConversion()
		}
		joined, err := parseDateJoined(row[3])
		if err != nil {
			return nil, errConversion()
		}

		members = append(members, domain.Member{
			Name:         name,
			Surname:      strings.TrimSpace(row[1]),
			BookingCount: count,
			DateJoined:   joined,
		})
	}

	if len(members) == 0 {
		return nil, errEmpty()
	}
	return members, nil
}

// ParseInventory reads an inventory upload. Rows without a title are skipped.
// Expiration dates use dd-MM-yyyy.
func ParseInventory(r io.Reader) ([]domain.Inventory, error) {
	rows, err := readRows(r, InventoryHeaders)
	if err != nil {
		return nil, err
	}

	items := make([]domain.Inventory, 0, len(rows))
	for _, row := range rows {
		title := strings.TrimSpace(row[0])
		if title == "" {
			continue
		}

		remaining, err := strconv.Atoi(strings.TrimSpace(row[2]))
		if err != nil {
			return nil, errConversion()
		}
		expires, err := time.ParseInLocation(expirationLayout, strings.TrimSpace(row[3]), time.UTC)
		if err != nil {
			return nil, errConversion()
		}

		items = append(items, domain.Inventory{
			Title:          title,
			Description:    strings.TrimSpace(row[1]),
			RemainingCount: remaining,
			ExpirationDate: expires,
		})
	}

	if len(items) == 0 {
		return nil, errEmpty()
	}
	return items, nil
}

func readRows(r io.Reader, headers []string) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(headers)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errEmpty()
	}
	if err != nil {
		return nil, errHeaders()
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	if !slices.Equal(header, headers) {
		return nil, errHeaders()
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errConversion()
	}
	return rows, nil
}

func parseDateJoined(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	var lastErr error
	for _, layout := range dateJoinedLayouts {
		t, err := time.ParseInLocation(layout, raw, time.UTC)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
