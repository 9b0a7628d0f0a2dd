package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func randBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

// deriveKey stretches password into a KeyLen key. The password is not modified.
func deriveKey(password []byte, p KDFParams) ([]byte, error) {
	if len(p.Salt) == 0 {
		return nil, errors.New("missing salt")
	}
	if err := p.Check(); err != nil {
		return nil, err
	}
	switch p.Algorithm {
	case KDFScrypt:
		return scrypt.Key(password, p.Salt, int(p.Memory), int(p.Time), int(p.Threads), KeyLen)
	default:
		return argon2.IDKey(password, p.Salt, p.Time, p.Memory, p.Threads, KeyLen), nil
	}
}

func newAEAD(c Cipher, key []byte) (cipher.AEAD, error) {
	switch c {
	case CipherAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case CipherXChaCha20Poly1305:
		return chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("unknown cipher %d", c)
	}
}

// seal encrypts plaintext under a fresh random nonce.
func seal(c Cipher, key, plaintext []byte) (nonce, ct []byte, err error) {
	aead, err := newAEAD(c, key)
	if err != nil {
		return nil, nil, err
	}
	nonce, err = randBytes(aead.NonceSize())
	if err != nil {
		return nil, nil, err
	}
	return nonce, aead.Seal(nil, nonce, plaintext, nil), nil
}

func open(c Cipher, key, nonce, ct []byte) ([]byte, error) {
	aead, err := newAEAD(c, key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, errors.New("nonce size mismatch")
	}
	return aead.Open(nil, nonce, ct, nil)
}

// Header layout, big endian:
//
//	magic[4] version[1] flags[2] kdf[1] time[4] memory[4] threads[1]
//	cipher[1] saltLen[1] salt nonceLen[1] nonce | ciphertext
func encodeHeader(h fileHeader) ([]byte, error) {
	if len(h.Salt) > 255 {
		return nil, errors.New("salt too long")
	}
	if len(h.Nonce) > 255 {
		return nil, errors.New("nonce too long")
	}

	buf := &bytes.Buffer{}
	buf.WriteString(Magic)
	buf.WriteByte(Version)
	_ = binary.Write(buf, binary.BigEndian, h.Flags)
	buf.WriteByte(byte(h.KDF))
	_ = binary.Write(buf, binary.BigEndian, h.Time)
	_ = binary.Write(buf, binary.BigEndian, h.Memory)
	buf.WriteByte(h.Threads)
	buf.WriteByte(byte(h.Cipher))
	buf.WriteByte(uint8(len(h.Salt)))
	buf.Write(h.Salt)
	buf.WriteByte(uint8(len(h.Nonce)))
	buf.Write(h.Nonce)

	return buf.Bytes(), nil
}

const minHeaderLen = 4 + 1 + 2 + 1 + 4 + 4 + 1 + 1 + 1 + 1

func decodeHeader(raw []byte) (fileHeader, []byte, error) {
	var h fileHeader
	if len(raw) < minHeaderLen {
		return h, nil, errors.New("file too short")
	}

	r := bytes.NewReader(raw)

	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return h, nil, err
	}
	if string(magic) != Magic {
		return h, nil, errors.New("bad magic")
	}

	version, _ := r.ReadByte()
	if version != Version {
		return h, nil, fmt.Errorf("unsupported version %d", version)
	}

	fields := []any{&h.Flags, &h.KDF, &h.Time, &h.Memory, &h.Threads, &h.Cipher}
	for _, f := range fields {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return h, nil, err
		}
	}

	if err := h.params().Check(); err != nil {
		return h, nil, err
	}

	var err error
	if h.Salt, err = readBlock(r); err != nil {
		return h, nil, fmt.Errorf("salt: %w", err)
	}
	if h.Nonce, err = readBlock(r); err != nil {
		return h, nil, fmt.Errorf("nonce: %w", err)
	}

	ct := raw[len(raw)-r.Len():]
	if len(ct) == 0 {
		return h, nil, errors.New("missing ciphertext")
	}
	return h, ct, nil
}

func readBlock(r *bytes.Reader) ([]byte, error) {
	n, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
