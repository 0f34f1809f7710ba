// Package reconcile computes the line-item changes that move a document from
// its persisted material set to a requested one.
package reconcile

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-bengkel/internal/lineitem"
)

// Line is a persisted line item with its price snapshot.
type Line struct {
	MaterialID int64
	Quantity   int64
	UnitPrice  decimal.Decimal
}

// Change is a persisted line whose quantity differs from the request.
// UnitPrice is the existing snapshot and is never re-priced.
type Change struct {
	MaterialID int64
	Quantity   int64
	Previous   int64
	UnitPrice  decimal.Decimal
}

// Result partitions the union of material ids into four disjoint sets.
type Result struct {
	ToAdd       []lineitem.Item
	ToModify    []Change
	ToUnchanged []Line
	ToRemove    []Line
}

// Diff matches requested and persisted items by material id. Material ids are
// assumed unique on each side; callers check that with lineitem.CheckUnique.
func Diff(requested []lineitem.Item, persisted []Line) Result {
	current := make(map[int64]Line, len(persisted))
	for _, line := range persisted {
		current[line.MaterialID] = line
	}
	wanted := make(map[int64]struct{}, len(requested))

	var res Result
	for _, item := range requested {
		wanted[item.MaterialID] = struct{}{}
		line, ok := current[item.MaterialID]
		switch {
		case !ok:
			res.ToAdd = append(res.ToAdd, item)
		case line.Quantity != item.Quantity:
			res.ToModify = append(res.ToModify, Change{
				MaterialID: item.MaterialID,
				Quantity:   item.Quantity,
				Previous:   line.Quantity,
				UnitPrice:  line.UnitPrice,
			})
		default:
			res.ToUnchanged = append(res.ToUnchanged, line)
		}
	}
	for _, line := range persisted {
		if _, ok := wanted[line.MaterialID]; !ok {
			res.ToRemove = append(res.ToRemove, line)
		}
	}

	sort.Slice(res.ToAdd, func(i, j int) bool { return res.ToAdd[i].MaterialID < res.ToAdd[j].MaterialID })
	sort.Slice(res.ToModify, func(i, j int) bool { return res.ToModify[i].MaterialID < res.ToModify[j].MaterialID })
	sort.Slice(res.ToUnchanged, func(i, j int) bool { return res.ToUnchanged[i].MaterialID < res.ToUnchanged[j].MaterialID })
	sort.Slice(res.ToRemove, func(i, j int) bool { return res.ToRemove[i].MaterialID < res.ToRemove[j].MaterialID })
	return res
}

// Unchanged reports whether applying the result would not touch any line item.
func (r Result) Unchanged() bool {
	return len(r.ToAdd) == 0 && len(r.ToModify) == 0 && len(r.ToRemove) == 0
}

// Lines returns the priced line set after the diff is applied. prices must
// hold the current catalog price for every entry of ToAdd.
func (r Result) Lines(prices map[int64]decimal.Decimal) []Line {
	lines := make([]Line, 0, len(r.ToUnchanged)+len(r.ToModify)+len(r.ToAdd))
	lines = append(lines, r.ToUnchanged...)
	for _, c := range r.ToModify {
		lines = append(lines, Line{MaterialID: c.MaterialID, Quantity: c.Quantity, UnitPrice: c.UnitPrice})
	}
	for _, item := range r.ToAdd {
		lines = append(lines, Line{MaterialID: item.MaterialID, Quantity: item.Quantity, UnitPrice: prices[item.MaterialID]})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].MaterialID < lines[j].MaterialID })
	return lines
}

// AddedIDs lists the material ids that need a catalog price.
func (r Result) AddedIDs() []int64 {
	return lineitem.IDs(r.ToAdd)
}
