package vault

import (
	"fmt"
	"strings"

	"github.com/fahmaliyi/otpvault/errs"
)

const (
	KeyLen  = 32
	SaltLen = 16
	Magic   = "OTPV"
	Version = 0x01
)

var (
	ErrLocked   = errs.New(errs.KindLocked, "vault: locked")
	ErrCorrupt  = errs.New(errs.KindCorrupt, "vault: corrupt file")
	ErrAuthFail = errs.New(errs.KindAuthentication, "vault: authentication failed")
)

// KDF identifies the password hashing function recorded in the header.
type KDF uint8

const (
	KDFArgon2id KDF = 0x01
	KDFScrypt   KDF = 0x02
)

func (k KDF) String() string {
	switch k {
	case KDFArgon2id:
		return "argon2id"
	case KDFScrypt:
		return "scrypt"
	default:
		return "unknown"
	}
}

func ParseKDF(s string) (KDF, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "argon2id", "argon2":
		return KDFArgon2id, true
	case "scrypt":
		return KDFScrypt, true
	}
	return 0, false
}

// Cipher identifies the AEAD recorded in the header.
type Cipher uint8

const (
	CipherAES256GCM         Cipher = 0x01
	CipherXChaCha20Poly1305 Cipher = 0x02
)

func (c Cipher) String() string {
	switch c {
	case CipherAES256GCM:
		return "aes-256-gcm"
	case CipherXChaCha20Poly1305:
		return "xchacha20-poly1305"
	default:
		return "unknown"
	}
}

func ParseCipher(s string) (Cipher, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "aes-256-gcm", "aes256gcm", "aes":
		return CipherAES256GCM, true
	case "xchacha20-poly1305", "xchacha20poly1305", "xchacha":
		return CipherXChaCha20Poly1305, true
	}
	return 0, false
}

// KDFParams are stored in the header. For argon2id Time is passes, Memory is
// KiB and Threads is lanes. For scrypt Memory is N (a power of two), Time is r
// and Threads is p.
type KDFParams struct {
	Algorithm KDF
	Time      uint32
	Memory    uint32
	Threads   uint8
	Salt      []byte
}

// Upper bounds on KDF cost. Parameters come from an unauthenticated header,
// so anything beyond these is treated as corruption rather than run.
const (
	MaxArgon2Time    = 16
	MaxArgon2Threads = 64
	MaxKDFMemoryKiB  = 4 << 20 // 4 GiB
	MaxScryptN       = 1 << 24
)

// Check reports whether p can be fed to its KDF within the cost bounds.
func (p KDFParams) Check() error {
	switch p.Algorithm {
	case KDFArgon2id:
		if p.Time == 0 || p.Time > MaxArgon2Time {
			return fmt.Errorf("argon2id time %d out of range 1..%d", p.Time, MaxArgon2Time)
		}
		if p.Threads == 0 || p.Threads > MaxArgon2Threads {
			return fmt.Errorf("argon2id threads %d out of range 1..%d", p.Threads, MaxArgon2Threads)
		}
		if p.Memory == 0 || p.Memory > MaxKDFMemoryKiB {
			return fmt.Errorf("argon2id memory %d KiB out of range 1..%d", p.Memory, MaxKDFMemoryKiB)
		}
	case KDFScrypt:
		n, r, par := uint64(p.Memory), uint64(p.Time), uint64(p.Threads)
		if n < 2 || n > MaxScryptN || n&(n-1) != 0 {
			return fmt.Errorf("scrypt N %d must be a power of two in 2..%d", n, MaxScryptN)
		}
		if r == 0 || par == 0 || r*par >= 1<<30 {
			return fmt.Errorf("scrypt r=%d p=%d out of range", r, par)
		}
		if 128*r*n/1024 > MaxKDFMemoryKiB {
			return fmt.Errorf("scrypt N=%d r=%d needs more than %d KiB", n, r, MaxKDFMemoryKiB)
		}
	default:
		return fmt.Errorf("unknown kdf %d", p.Algorithm)
	}
	return nil
}

func DefaultKDFParams() KDFParams {
	return KDFParams{Algorithm: KDFArgon2id, Time: 3, Memory: 64 * 1024, Threads: 1}
}

func DefaultScryptParams() KDFParams {
	return KDFParams{Algorithm: KDFScrypt, Time: 8, Memory: 1 << 15, Threads: 1}
}

func (p KDFParams) clone() KDFParams {
	p.Salt = append([]byte(nil), p.Salt...)
	return p
}

type fileHeader struct {
	Flags   uint16
	KDF     KDF
	Time    uint32
	Memory  uint32
	Threads uint8
	Cipher  Cipher
	Salt    []byte
	Nonce   []byte
}

func (h fileHeader) params() KDFParams {
	return KDFParams{Algorithm: h.KDF, Time: h.Time, Memory: h.Memory, Threads: h.Threads, Salt: h.Salt}
}
