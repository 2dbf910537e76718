package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"nil", nil, ""},
		{"string", "Acme", "Acme"},
		{"number", json.Number("9007199254740993"), "9007199254740993"},
		{"bool", true, "true"},
		{"int64", int64(42), "42"},
		{"float", 1.5, "1.5"},
		{"whole float", float64(1700000000000), "1700000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.in))
		})
	}
}

func TestManifestSerialization(t *testing.T) {
	m := Manifest{Table: "deals", PrimaryKey: []string{"dealId"}, Incremental: true, RowsWritten: 3}
	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"primary_key":["dealId"],"incremental":true}`, string(b))
}

func TestPageLen(t *testing.T) {
	var p *Page
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, 2, (&Page{Records: []Record{{}, {}}}).Len())
}
