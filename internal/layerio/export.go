package layerio

import (
	"fmt"
	"os"

	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/dshills/hoverselect/internal/host"
)

// LayerSelection is the selection of one layer.
type LayerSelection struct {
	LayerID string
	Name    string
	IDs     []int64
}

// Snapshot collects the selections of every vector layer in store order.
// Layers with an empty selection are included.
func Snapshot(store host.LayerStore) ([]LayerSelection, error) {
	var out []LayerSelection
	for _, info := range store.Layers() {
		if info.Kind != host.LayerVector {
			continue
		}
		ids, err := store.SelectedIDs(info.ID)
		if err != nil {
			return nil, fmt.Errorf("read selection of %s: %w", info.Name, err)
		}
		out = append(out, LayerSelection{LayerID: info.ID, Name: info.Name, IDs: ids.Sorted()})
	}
	return out, nil
}

// EncodeSelection renders selections as a JSON report:
//
//	{"total": 3, "layers": [{"id": "...", "name": "...", "count": 3, "ids": [1, 2, 5]}]}
func EncodeSelection(sel []LayerSelection) ([]byte, error) {
	doc := []byte(`{"total":0,"layers":[]}`)
	total := 0

	var err error
	for i, l := range sel {
		ids := l.IDs
		if ids == nil {
			ids = []int64{}
		}
		prefix := fmt.Sprintf("layers.%d.", i)
		if doc, err = sjson.SetBytes(doc, prefix+"id", l.LayerID); err != nil {
			return nil, err
		}
		if doc, err = sjson.SetBytes(doc, prefix+"name", l.Name); err != nil {
			return nil, err
		}
		if doc, err = sjson.SetBytes(doc, prefix+"count", len(ids)); err != nil {
			return nil, err
		}
		if doc, err = sjson.SetBytes(doc, prefix+"ids", ids); err != nil {
			return nil, err
		}
		total += len(ids)
	}
	return sjson.SetBytes(doc, "total", total)
}

// WriteSelection writes an indented selection report to path.
func WriteSelection(path string, sel []LayerSelection) error {
	doc, err := EncodeSelection(sel)
	if err != nil {
		return fmt.Errorf("encode selection: %w", err)
	}
	return os.WriteFile(path, pretty.Pretty(doc), 0o644)
}
