package main

import (
	"encoding/csv"
	"encoding/json"
	"strings"

	"github.com/embranch/embranch/internal/changedetect"
	"github.com/embranch/embranch/internal/elog"
)

// parseDocumentRows parses the CSV output of `dolt sql -r csv` against
// "SELECT id, collection, content, metadata_json FROM documents" into
// DoltRow values, skipping the header row.
func parseDocumentRows(output string) []changedetect.DoltRow {
	r := csv.NewReader(strings.NewReader(output))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil || len(records) < 2 {
		return nil
	}

	rows := make([]changedetect.DoltRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) < 4 {
			continue
		}
		var meta map[string]any
		if rec[3] != "" {
			if err := json.Unmarshal([]byte(rec[3]), &meta); err != nil {
				elog.Warnf("skipping malformed metadata_json for %s/%s: %v", rec[1], rec[0], err)
			}
		}
		rows = append(rows, changedetect.DoltRow{
			ID:         rec[0],
			Collection: rec[1],
			Content:    rec[2],
			Metadata:   meta,
		})
	}
	return rows
}
