// Package qr renders otpauth URIs as QR codes for the terminal or as PNG.
package qr

import (
	"errors"
	"strings"

	skipqrcode "github.com/skip2/go-qrcode"

	"github.com/fahmaliyi/otpvault/fsutil"
)

var (
	ErrEmptyContent = errors.New("content cannot be empty")
	ErrGenerate     = errors.New("failed to generate QR code")
)

const defaultSize = 256

func encoder(content string) (*skipqrcode.QRCode, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	q, err := skipqrcode.New(content, skipqrcode.Medium)
	if err != nil {
		return nil, errors.Join(ErrGenerate, err)
	}
	return q, nil
}

// Terminal returns the code drawn with half-block characters, two modules
// per character row.
func Terminal(content string) (string, error) {
	q, err := encoder(content)
	if err != nil {
		return "", err
	}
	return q.ToSmallString(false), nil
}

// PNG returns a size x size PNG image.
func PNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = defaultSize
	}
	q, err := encoder(content)
	if err != nil {
		return nil, err
	}
	png, err := q.PNG(size)
	if err != nil {
		return nil, errors.Join(ErrGenerate, err)
	}
	return png, nil
}

// WritePNG writes the PNG to path with owner-only permissions, since the
// image carries the shared secret.
func WritePNG(path, content string, size int) error {
	png, err := PNG(content, size)
	if err != nil {
		return err
	}
	return fsutil.WriteFile(path, png, 0o600)
}
