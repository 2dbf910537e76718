package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKeepsNumbers(t *testing.T) {
	var out map[string]interface{}
	require.NoError(t, Decode([]byte(`{"companyId": 9007199254740993, "ratio": 0.5}`), &out))

	id, ok := out["companyId"].(Number)
	require.True(t, ok, "expected Number, got %T", out["companyId"])
	assert.Equal(t, "9007199254740993", id.String())
	assert.Equal(t, Number("0.5"), out["ratio"])
}

func TestMarshalCompact(t *testing.T) {
	s, err := MarshalCompact(map[string]interface{}{"url": "a<b>&c", "ids": []int{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, `{"ids":[1,2],"url":"a<b>&c"}`, s)
}

func TestMarshalToWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, MarshalToWriter(&buf, map[string]bool{"incremental": true}))
	assert.Equal(t, "{\"incremental\":true}\n", buf.String())
}

func TestBufferPool(t *testing.T) {
	buf := GetBuffer()
	buf.WriteString("leftover")
	PutBuffer(buf)

	again := GetBuffer()
	assert.Equal(t, 0, again.Len())
	PutBuffer(again)
}
