package registry

import (
	"encoding/csv"
	"io"
	"os"

	"aklineservice/internal/domain"
)

// ReadListingCSV parses a (code, name, list_date) exchange listing export.
// Malformed rows (fewer than two columns) are skipped and counted rather
// than aborting the file. Returns the listings and the skipped-row count.
func ReadListingCSV(path string) ([]domain.RawListing, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var listings []domain.RawListing
	failures := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		if len(record) < 2 {
			failures++
			continue
		}
		listing := domain.RawListing{Code: record[0], Name: record[1]}
		if len(record) >= 3 {
			listing.ListDate = record[2]
		}
		listings = append(listings, listing)
	}
	return listings, failures, nil
}
