package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

const noDataPlaceholder = "暂无数据"

// ToCSV renders rows under the given headers. Empty input yields a single
// placeholder row instead of an empty file.
func ToCSV(headers []string, rows []map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if len(rows) == 0 {
		if err := writer.Write([]string{noDataPlaceholder}); err != nil {
			return nil, fmt.Errorf("write placeholder: %w", err)
		}
	} else {
		if err := writer.Write(headers); err != nil {
			return nil, fmt.Errorf("write headers: %w", err)
		}
		for _, row := range rows {
			record := make([]string, 0, len(headers))
			for _, header := range headers {
				record = append(record, row[header])
			}
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("write row: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}

	return buf.Bytes(), nil
}
