package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Account passwords are stored in users.password_hash as Argon2id hashes
// in PHC form: $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

// maxHashMemory bounds the memory cost read back from a stored hash so a
// tampered row cannot make a login allocate without limit.
const maxHashMemory = 1024 * 1024 // KiB

// hashParams is the Argon2id cost used for new account hashes (OWASP
// recommendation).
var hashParams = argonParams{time: 3, memory: 64 * 1024, threads: 1}

const (
	hashSaltLen = 16
	hashKeyLen  = 32
)

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

// phcHash is a decoded password_hash value.
type phcHash struct {
	params argonParams
	salt   []byte
	key    []byte
}

func (h phcHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.memory, h.params.time, h.params.threads,
		base64.RawStdEncoding.EncodeToString(h.salt),
		base64.RawStdEncoding.EncodeToString(h.key),
	)
}

// ValidatePassword rejects passwords shorter than MinPasswordLength.
func ValidatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return fmt.Errorf("%w: minimum %d characters", ErrWeakPassword, MinPasswordLength)
	}
	return nil
}

// HashPassword derives the password_hash value stored for a new or
// re-registered account.
func HashPassword(password string) (string, error) {
	salt := make([]byte, hashSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	h := phcHash{params: hashParams, salt: salt}
	h.key = argon2.IDKey([]byte(password), salt, h.params.time, h.params.memory, h.params.threads, hashKeyLen)
	return h.String(), nil
}

// VerifyPassword reports whether password matches a stored password_hash.
// A value that cannot be decoded yields an error wrapping ErrMalformedHash,
// never a plain mismatch.
func VerifyPassword(password, encoded string) (bool, error) {
	h, err := parsePHC(encoded)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrMalformedHash, err)
	}

	candidate := argon2.IDKey([]byte(password), h.salt, h.params.time, h.params.memory, h.params.threads, uint32(len(h.key))) //nolint:gosec // G115: key length always fits uint32
	return subtle.ConstantTimeCompare(h.key, candidate) == 1, nil
}

func parsePHC(encoded string) (phcHash, error) {
	var h phcHash

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" { //nolint:mnd // "", alg, version, params, salt, key
		return h, fmt.Errorf("expected 6 $-separated fields")
	}
	if parts[1] != "argon2id" {
		return h, fmt.Errorf("unsupported algorithm %q", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return h, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return h, fmt.Errorf("unsupported argon2 version %d", version)
	}

	p := &h.params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return h, fmt.Errorf("parsing cost: %w", err)
	}
	if p.time == 0 || p.threads == 0 || p.memory == 0 || p.memory > maxHashMemory {
		return h, fmt.Errorf("cost out of range: m=%d,t=%d,p=%d", p.memory, p.time, p.threads)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return h, fmt.Errorf("decoding salt: %w", err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return h, fmt.Errorf("decoding key: %w", err)
	}
	if len(h.key) == 0 {
		return h, fmt.Errorf("empty key")
	}
	return h, nil
}
