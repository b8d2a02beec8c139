package store

import (
	"bytes"
	"encoding/csv"
	"io"

	"github.com/pkg/errors"

	"github.com/zrma/go-wakeword/mfcc"
)

// Entry is one row of the label ledger: a feature file and its label.
type Entry struct {
	File  string
	Label string
}

// LabelCount is the number of stored samples for a label.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

func parseLedger(data []byte) ([]Entry, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = 2

	var entries []Entry
	for {
		record, err := r.Read()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, errors.Wrapf(mfcc.ErrStorage, "parse ledger failed: %v", err)
		}
		entries = append(entries, Entry{File: record[0], Label: record[1]})
	}
}

func formatLedger(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, e := range entries {
		if err := w.Write([]string{e.File, e.Label}); err != nil {
			return nil, errors.Wrap(err, "write ledger row failed")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, "flush ledger failed")
	}
	return buf.Bytes(), nil
}

// countLabels counts entries per label in order of first appearance.
func countLabels(entries []Entry) []LabelCount {
	var out []LabelCount
	index := make(map[string]int)
	for _, e := range entries {
		i, ok := index[e.Label]
		if !ok {
			i = len(out)
			index[e.Label] = i
			out = append(out, LabelCount{Label: e.Label})
		}
		out[i].Count++
	}
	return out
}
