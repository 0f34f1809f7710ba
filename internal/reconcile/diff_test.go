package reconcile

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-bengkel/internal/lineitem"
)

func price(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestDiffBuckets(t *testing.T) {
	persisted := []Line{
		{MaterialID: 1, Quantity: 2, UnitPrice: price("50")},
		{MaterialID: 2, Quantity: 1, UnitPrice: price("30")},
		{MaterialID: 3, Quantity: 4, UnitPrice: price("12.5")},
	}
	requested := []lineitem.Item{{MaterialID: 4, Quantity: 1}, {MaterialID: 2, Quantity: 3}, {MaterialID: 1, Quantity: 2}}

	res := Diff(requested, persisted)

	require.Equal(t, []lineitem.Item{{MaterialID: 4, Quantity: 1}}, res.ToAdd)
	require.Len(t, res.ToModify, 1)
	require.Equal(t, int64(2), res.ToModify[0].MaterialID)
	require.Equal(t, int64(3), res.ToModify[0].Quantity)
	require.Equal(t, int64(1), res.ToModify[0].Previous)
	require.True(t, res.ToModify[0].UnitPrice.Equal(price("30")))
	require.Len(t, res.ToUnchanged, 1)
	require.Equal(t, int64(1), res.ToUnchanged[0].MaterialID)
	require.Len(t, res.ToRemove, 1)
	require.Equal(t, int64(3), res.ToRemove[0].MaterialID)
	require.False(t, res.Unchanged())
}

func TestDiffEmptyRequestRemovesEverything(t *testing.T) {
	persisted := []Line{{MaterialID: 1, Quantity: 1, UnitPrice: price("1")}, {MaterialID: 2, Quantity: 1, UnitPrice: price("2")}}
	res := Diff(nil, persisted)
	require.Empty(t, res.ToAdd)
	require.Empty(t, res.ToModify)
	require.Empty(t, res.ToUnchanged)
	require.Len(t, res.ToRemove, 2)
}

func TestDiffIdenticalSetIsUnchanged(t *testing.T) {
	persisted := []Line{{MaterialID: 5, Quantity: 2, UnitPrice: price("9.99")}}
	res := Diff([]lineitem.Item{{MaterialID: 5, Quantity: 2}}, persisted)
	require.True(t, res.Unchanged())
	require.Len(t, res.ToUnchanged, 1)
}

func TestLinesKeepSnapshotsAndPriceAdditions(t *testing.T) {
	persisted := []Line{
		{MaterialID: 1, Quantity: 2, UnitPrice: price("50")},
		{MaterialID: 2, Quantity: 1, UnitPrice: price("30")},
	}
	res := Diff([]lineitem.Item{{MaterialID: 1, Quantity: 2}, {MaterialID: 2, Quantity: 5}, {MaterialID: 7, Quantity: 1}}, persisted)
	require.Equal(t, []int64{7}, res.AddedIDs())

	lines := res.Lines(map[int64]decimal.Decimal{7: price("80"), 2: price("999")})
	require.Len(t, lines, 3)
	require.True(t, lines[0].UnitPrice.Equal(price("50")))
	require.Equal(t, int64(5), lines[1].Quantity)
	require.True(t, lines[1].UnitPrice.Equal(price("30")), "modified lines keep their snapshot")
	require.True(t, lines[2].UnitPrice.Equal(price("80")))
}

func TestDiffPartitionsUnionExactlyOnce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for n := 0; n < 300; n++ {
		persisted := []Line{}
		for _, id := range rng.Perm(12)[:rng.Intn(8)] {
			persisted = append(persisted, Line{MaterialID: int64(id), Quantity: int64(rng.Intn(3) + 1), UnitPrice: price("1")})
		}
		requested := []lineitem.Item{}
		for _, id := range rng.Perm(12)[:rng.Intn(8)] {
			requested = append(requested, lineitem.Item{MaterialID: int64(id), Quantity: int64(rng.Intn(3) + 1)})
		}

		res := Diff(requested, persisted)

		seen := map[int64]int{}
		for _, it := range res.ToAdd {
			seen[it.MaterialID]++
		}
		for _, c := range res.ToModify {
			seen[c.MaterialID]++
		}
		for _, l := range res.ToUnchanged {
			seen[l.MaterialID]++
		}
		for _, l := range res.ToRemove {
			seen[l.MaterialID]++
		}

		union := map[int64]struct{}{}
		for _, l := range persisted {
			union[l.MaterialID] = struct{}{}
		}
		for _, it := range requested {
			union[it.MaterialID] = struct{}{}
		}
		require.Len(t, seen, len(union))
		for id := range union {
			require.Equalf(t, 1, seen[id], "material %d appears %d times", id, seen[id])
		}
	}
}
