package filereader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranscodeToUTF8Empty(t *testing.T) {
	out, err := TranscodeToUTF8("", []byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, "hello", string(out))
}

func TestTranscodeToUTF8Latin1(t *testing.T) {
	// 0xE9 is "é" in ISO-8859-1.
	out, err := TranscodeToUTF8("iso-8859-1", []byte{'c', 0xE9})
	assert.NoError(t, err)
	assert.Equal(t, "cé", string(out))
}

func TestTranscodeToUTF8UnknownCharset(t *testing.T) {
	_, err := TranscodeToUTF8("not-a-real-charset", []byte("x"))
	assert.Error(t, err)
}

func TestHasUTF16BOM(t *testing.T) {
	assert.True(t, HasUTF16BOM([]byte{0xFE, 0xFF, 0x00, 0x41}))  // big-endian BOM
	assert.True(t, HasUTF16BOM([]byte{0xFF, 0xFE, 0x41, 0x00}))  // little-endian BOM
	assert.False(t, HasUTF16BOM([]byte("plain ascii, no bom")))
}

func TestIsPlainTextType(t *testing.T) {
	assert.True(t, IsPlainTextType("text"))
	assert.True(t, IsPlainTextType("text+k"))
	assert.True(t, IsPlainTextType("ktext"))
	assert.False(t, IsPlainTextType("unicode"))
	assert.False(t, IsPlainTextType("utf16"))
	assert.False(t, IsPlainTextType("binary"))
	assert.False(t, IsPlainTextType("symlink"))
}
