package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContentKey(t *testing.T) {
	key := NewContentKey([]byte("hello"))

	require.Len(t, key, 34)
	assert.Equal(t, byte(MultihashSHA2256), key[0])
	assert.Equal(t, byte(32), key[1])

	parsed, err := ParseContentKey(key)
	require.NoError(t, err)
	assert.Equal(t, key, parsed)
	assert.Equal(t, ConvertKey(key), parsed.DHTID())
}

func TestParseContentKey_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"空键", nil, ErrMissingKey},
		{"普通字符串", []byte("hello world"), ErrInvalidKey},
		{"摘要长度为 0", []byte{0x12, 0x00}, ErrInvalidKey},
		{"摘要被截断", []byte{0x12, 0x20, 0x01, 0x02}, ErrInvalidKey},
		{"varint 未结束", []byte{0x80}, ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseContentKey(tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
