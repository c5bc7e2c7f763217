package eval

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/brunobiangulo/kgsynth/dataset"
)

// Kind selects the record shape being scored.
type Kind string

const (
	KGC Kind = "kgc"
	RTE Kind = "rte"
)

// Item is one record to score together with the judge prompt built for it.
type Item struct {
	Index  int
	Prompt string
}

// LoadDataset reads a JSON array of records of the given kind and builds one
// judge prompt per record.
func LoadDataset(path string, kind Kind) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s dataset: %w", kind, err)
	}

	var items []Item
	switch kind {
	case KGC:
		var recs []dataset.KGCRecord
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, fmt.Errorf("%s is not a JSON array of KGC records: %w", path, err)
		}
		for i, r := range recs {
			items = append(items, Item{Index: i, Prompt: KGCPrompt(r)})
		}
	case RTE:
		var recs []dataset.RTERecord
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, fmt.Errorf("%s is not a JSON array of RTE records: %w", path, err)
		}
		for i, r := range recs {
			p, err := RTEPrompt(r)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			items = append(items, Item{Index: i, Prompt: p})
		}
	default:
		return nil, fmt.Errorf("unknown dataset kind %q", kind)
	}

	slog.Info("eval: dataset loaded", "kind", kind, "path", path, "entries", len(items))
	return items, nil
}
