package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, DatabaseHeaderSize)
	h := DatabaseHeader{PageSize: 4096, PageCount: 7, SchemaVersion: 1}
	EncodeHeader(buf, h)

	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestHeaderFieldOffsetsMatchLayout(t *testing.T) {
	buf := make([]byte, DatabaseHeaderSize)
	EncodeHeader(buf, DatabaseHeader{PageSize: 4096, PageCount: 1, SchemaVersion: 1})

	assert.Equal(t, []byte("MAGNI_DB_v1.0"), buf[0:13])
	assert.Equal(t, uint32(4096), getUint32LE(buf[13:17]))
	assert.Equal(t, uint32(1), getUint32LE(buf[17:21]))
	assert.Equal(t, uint32(1), getUint32LE(buf[21:25]))
	for _, b := range buf[25:100] {
		assert.Zero(t, b)
	}
}

func TestDecodeHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, DatabaseHeaderSize)
	EncodeHeader(buf, DatabaseHeader{PageSize: 4096, PageCount: 1, SchemaVersion: 1})
	buf[0] = 'X'

	_, err := DecodeHeader(buf)
	require.Error(t, err)
	assert.True(t, Is(err, KindInvalidPageHeader))
}

func TestDecodeHeaderRejectsShortBuffer(t *testing.T) {
	_, err := DecodeHeader(make([]byte, 10))
	require.Error(t, err)
	assert.True(t, Is(err, KindInvalidPageHeader))
}
