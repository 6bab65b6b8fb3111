package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONScan(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  JSON
	}{
		{name: "bytes", input: []byte(`{"a":1}`), want: JSON(`{"a":1}`)},
		{name: "string", input: `[1,2]`, want: JSON(`[1,2]`)},
		{name: "nil", input: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var j JSON
			require.NoError(t, j.Scan(tt.input))
			assert.Equal(t, tt.want, j)
		})
	}
}

func TestJSONScanCopiesBuffer(t *testing.T) {
	buf := []byte(`{"a":1}`)
	var j JSON
	require.NoError(t, j.Scan(buf))

	buf[2] = 'b'
	assert.Equal(t, `{"a":1}`, string(j))
}

func TestJSONScanRejectsUnknownType(t *testing.T) {
	var j JSON
	assert.Error(t, j.Scan(42))
}

func TestJSONValue(t *testing.T) {
	v, err := JSON(`{"a":1}`).Value()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, v)

	v, err = JSON(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = JSON(`{"a":`).Value()
	assert.Error(t, err)
}
