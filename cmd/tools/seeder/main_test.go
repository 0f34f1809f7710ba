package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadMaterials(t *testing.T) {
	in := "product_name,product_cost\nEngine oil, 85000.456\nSpark plug,25000\n"
	got, err := readMaterials(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Engine oil", got[0].Name)
	require.Equal(t, "85000.46", got[0].Cost.StringFixed(2))
}

func TestReadMaterialsRejectsBadRows(t *testing.T) {
	_, err := readMaterials(strings.NewReader("product_name,product_cost\nOil,-1\n"))
	require.ErrorContains(t, err, "line 2")

	_, err = readMaterials(strings.NewReader(""))
	require.Error(t, err)
}
