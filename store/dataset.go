package store

import (
	"fmt"
	"io"

	"github.com/hupe1980/sigtree/codec"
	"github.com/hupe1980/sigtree/geo"
)

// Box is the wire form of a non-empty boundary: [minX, minY, maxX, maxY].
type Box [4]float64

// BoxOf returns the wire form of r, nil for the empty rect.
func BoxOf(r geo.Rect) *Box {
	if r.IsEmpty() {
		return nil
	}
	return &Box{r.MinX, r.MinY, r.MaxX, r.MaxY}
}

// Rect converts b to a geo.Rect; a nil box is the empty rect.
func (b *Box) Rect() geo.Rect {
	if b == nil {
		return geo.Empty()
	}
	return geo.NewRect(b[0], b[1], b[2], b[3])
}

// Dataset is the serialized form of a store.
type Dataset struct {
	Items   []DatasetItem   `json:"items"`
	Regions []DatasetRegion `json:"regions"`
	Cells   []DatasetCell   `json:"cells"`
}

// DatasetItem is one item of a Dataset; its id is its position.
type DatasetItem struct {
	KV       []KV     `json:"kv,omitempty"`
	Boundary *Box     `json:"boundary,omitempty"`
	Cells    []uint32 `json:"cells,omitempty"`
}

// DatasetRegion is one region of a Dataset.
type DatasetRegion struct {
	Item    uint32   `json:"item"`
	Parents []uint32 `json:"parents,omitempty"`
}

// DatasetCell is one cell of a Dataset.
type DatasetCell struct {
	Boundary *Box     `json:"boundary,omitempty"`
	Parents  []uint32 `json:"parents,omitempty"`
}

// Build turns the dataset into a Memory store.
func (d *Dataset) Build() (*Memory, error) {
	b := NewMemoryBuilder()
	for _, it := range d.Items {
		id := b.AddItem(it.Boundary.Rect(), it.KV...)
		b.Assign(id, it.Cells...)
	}
	for _, r := range d.Regions {
		b.AddRegion(r.Item, r.Parents...)
	}
	for _, c := range d.Cells {
		b.AddCell(c.Boundary.Rect(), c.Parents...)
	}
	return b.Build()
}

// ToDataset reads every record of s.
func ToDataset(s Store) (*Dataset, error) {
	h := s.Hierarchy()
	d := &Dataset{
		Items:   make([]DatasetItem, s.Size()),
		Regions: make([]DatasetRegion, h.RegionSize()),
		Cells:   make([]DatasetCell, h.CellSize()),
	}
	for i := range d.Items {
		it, err := s.Item(uint32(i))
		if err != nil {
			return nil, err
		}
		d.Items[i] = DatasetItem{KV: it.KV, Boundary: BoxOf(it.Boundary), Cells: it.Cells}
	}
	for i := range d.Regions {
		r, err := h.Region(uint32(i))
		if err != nil {
			return nil, err
		}
		d.Regions[i] = DatasetRegion{Item: r.Item, Parents: r.Parents}
	}
	for i := range d.Cells {
		c, err := h.Cell(uint32(i))
		if err != nil {
			return nil, err
		}
		d.Cells[i] = DatasetCell{Boundary: BoxOf(c.Boundary), Parents: c.Parents}
	}
	return d, nil
}

// LoadJSON reads a dataset encoded with c (codec.Default if nil) and
// builds a Memory store from it.
func LoadJSON(r io.Reader, c codec.Codec) (*Memory, error) {
	if c == nil {
		c = codec.Default
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("store: read dataset: %w", err)
	}
	var d Dataset
	if err := c.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataset, err)
	}
	return d.Build()
}

// WriteJSON writes s as a dataset encoded with c (codec.Default if nil).
func WriteJSON(w io.Writer, c codec.Codec, s Store) error {
	if c == nil {
		c = codec.Default
	}
	d, err := ToDataset(s)
	if err != nil {
		return err
	}
	data, err := c.Marshal(d)
	if err != nil {
		return fmt.Errorf("store: encode dataset: %w", err)
	}
	_, err = w.Write(data)
	return err
}
