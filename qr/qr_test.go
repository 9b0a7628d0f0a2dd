package qr_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahmaliyi/otpvault/qr"
)

const uri = "otpauth://totp/GitHub%3Aoctocat?period=30&digits=6&algorithm=SHA1&secret=JBSWY3DPEHPK3PXP&issuer=GitHub"

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func TestEmptyContent(t *testing.T) {
	t.Parallel()

	_, err := qr.Terminal("  ")
	assert.ErrorIs(t, err, qr.ErrEmptyContent)
	_, err = qr.PNG("", 128)
	assert.ErrorIs(t, err, qr.ErrEmptyContent)
}

func TestTerminal(t *testing.T) {
	t.Parallel()

	out, err := qr.Terminal(uri)
	require.NoError(t, err)
	assert.Greater(t, len(out), 100)
	assert.Contains(t, out, "\n")
}

func TestPNG(t *testing.T) {
	t.Parallel()

	png, err := qr.PNG(uri, 0)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))

	path := filepath.Join(t.TempDir(), "code.png")
	require.NoError(t, qr.WritePNG(path, uri, 128))

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(written, pngMagic))
}
