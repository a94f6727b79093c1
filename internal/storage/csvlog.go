package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// CSV headers match the export format consumed downstream.
var (
	tradeLogHeader = []string{"contractName", "time", "price", "quantity", "region", "AOF_last_1h"}
	boardLogHeader = []string{"contractName", "time", "averagePrice", "minPrice", "maxPrice",
		"mcp", "lastPrice", "total", "volume", "bestBuyPrice", "bestSellPrice"}
)

// appendLog is a plain tabular append-only file with a header row written
// once on creation. The caller serializes access; writes here happen under
// the storage write lock so lines never interleave.
type appendLog struct {
	path   string
	header []string
}

func newAppendLog(path string, header []string) *appendLog {
	return &appendLog{path: path, header: header}
}

// append writes one row, creating the file with its header first if needed.
func (l *appendLog) append(row []string) error {
	needHeader := false
	if info, err := os.Stat(l.path); os.IsNotExist(err) || (err == nil && info.Size() == 0) {
		needHeader = true
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", l.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needHeader {
		if err := w.Write(l.header); err != nil {
			return err
		}
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// formatFloat renders a value for the CSV, shortest form.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// formatOptional renders an optional value, blank when absent.
func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
