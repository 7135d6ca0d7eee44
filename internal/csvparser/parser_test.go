package csvparser

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	input := "\ufeffDescription, HSN Code ,Quantity,Unit Rate,UOM,Notes\n" +
		"\n" +
		"\"Copper wire, 2mm\",7408,2,100,Kg,fragile\n" +
		"Cable tie,3926,1,50\n"

	data, err := Parse(strings.NewReader(input), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"description", "hsn", "qty", "rate", "unit", "notes"}, data.Headers)
	require.Len(t, data.Rows, 2)
	assert.Equal(t, "Copper wire, 2mm", data.Rows[0]["description"])
	assert.Equal(t, "", data.Rows[1]["unit"], "missing trailing columns are empty")
	assert.Equal(t, []int{3, 4}, data.Lines)
}

func TestParseDelimiters(t *testing.T) {
	tests := []struct {
		delimiter string
		input     string
	}{
		{"", "description,qty,rate\nBolt,1,2\n"},
		{"semicolon", "description;qty;rate\nBolt;1;2\n"},
		{"pipe", "description|qty|rate\nBolt|1|2\n"},
		{"tab", "description\tqty\trate\nBolt\t1\t2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.delimiter, func(t *testing.T) {
			data, err := Parse(strings.NewReader(tt.input), Options{Delimiter: tt.delimiter})
			require.NoError(t, err)
			require.Len(t, data.Rows, 1)
			assert.Equal(t, "Bolt", data.Rows[0]["description"])
			assert.Equal(t, "2", data.Rows[0]["rate"])
		})
	}
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse(strings.NewReader("\n,,\n"), Options{})
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestItems(t *testing.T) {
	data, err := Parse(strings.NewReader(
		"description,hsn,qty,rate,unit\n"+
			"Copper wire,7408,2,\"1,000.50\",Kg\n"+
			"Cable tie,3926,1.5,50,\n"), Options{})
	require.NoError(t, err)

	items, err := Items(data)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Copper wire", items[0].Description)
	assert.Equal(t, "7408", items[0].HSNCode)
	assert.Equal(t, "1000.5", items[0].UnitRate.String())
	assert.Equal(t, "2001", items[0].Amount().String())
	assert.Equal(t, "Kg", items[0].Unit)
	assert.Equal(t, "1.5", items[1].Quantity.String())
	assert.Empty(t, items[1].Unit, "unit defaults are applied by validation")
}

func TestItemsErrors(t *testing.T) {
	data, err := Parse(strings.NewReader(
		"description,qty,rate\n"+
			"Bolt,two,5\n"+
			"Nut,1,\n"), Options{})
	require.NoError(t, err)

	_, err = Items(data)
	require.Error(t, err)

	var rowErr *RowError
	require.True(t, errors.As(err, &rowErr))
	assert.Equal(t, 2, rowErr.Row)
	assert.Equal(t, "qty", rowErr.Field)
	assert.Contains(t, err.Error(), "row 3: rate")
}

func TestItemsMissingColumns(t *testing.T) {
	data, err := Parse(strings.NewReader("description,hsn\nBolt,7318\n"), Options{})
	require.NoError(t, err)

	_, err = Items(data)
	assert.EqualError(t, err, "missing required columns: qty, rate")
}

func TestReadItems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.csv")
	require.NoError(t, os.WriteFile(path, []byte("desc,qty,price\nBolt,4,2.5\n"), 0o644))

	items, err := ReadItems(path, Options{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "10", items[0].Amount().String())

	_, err = ReadItems(filepath.Join(t.TempDir(), "missing.csv"), Options{})
	assert.Error(t, err)
}
