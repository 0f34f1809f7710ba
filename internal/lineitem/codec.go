// Package lineitem decodes and encodes the compact material list used on the
// wire: "<materialId>:<qty>,<materialId>:<qty>". The empty string is an empty list.
package lineitem

import (
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrMalformedLineItems is returned when the encoded string does not match the grammar.
	ErrMalformedLineItems = errors.New("lineitem: malformed line item string")
	// ErrDuplicateLineItem is returned when a material id appears more than once.
	ErrDuplicateLineItem = errors.New("lineitem: duplicate material")
)

// Digit bounds keep every matched value inside int64 so Parse never fails after a match.
var grammar = regexp.MustCompile(`^(0*[0-9]{1,18}:0*[1-9][0-9]{0,8})(,0*[0-9]{1,18}:0*[1-9][0-9]{0,8})*$`)

// Item is a single requested material with its quantity.
type Item struct {
	MaterialID int64 `json:"materialId"`
	Quantity   int64 `json:"quantity"`
}

// Parse validates the whole string against the grammar and then decodes it.
func Parse(encoded string) ([]Item, error) {
	if encoded == "" {
		return []Item{}, nil
	}
	if !grammar.MatchString(encoded) {
		return nil, ErrMalformedLineItems
	}
	pairs := strings.Split(encoded, ",")
	items := make([]Item, 0, len(pairs))
	for _, pair := range pairs {
		id, qty, _ := strings.Cut(pair, ":")
		materialID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, ErrMalformedLineItems
		}
		quantity, err := strconv.ParseInt(qty, 10, 64)
		if err != nil {
			return nil, ErrMalformedLineItems
		}
		items = append(items, Item{MaterialID: materialID, Quantity: quantity})
	}
	return items, nil
}

// Encode renders items in canonical order (material id, then quantity).
func Encode(items []Item) string {
	if len(items) == 0 {
		return ""
	}
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].MaterialID != sorted[j].MaterialID {
			return sorted[i].MaterialID < sorted[j].MaterialID
		}
		return sorted[i].Quantity < sorted[j].Quantity
	})
	var b strings.Builder
	for i, item := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(item.MaterialID, 10))
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(item.Quantity, 10))
	}
	return b.String()
}

// CheckUnique reports ErrDuplicateLineItem when a material id repeats.
func CheckUnique(items []Item) error {
	seen := make(map[int64]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.MaterialID]; ok {
			return ErrDuplicateLineItem
		}
		seen[item.MaterialID] = struct{}{}
	}
	return nil
}

// IDs returns the material ids in input order.
func IDs(items []Item) []int64 {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.MaterialID)
	}
	return ids
}
