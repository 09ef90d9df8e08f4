package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

type Argon2Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

var defaultParams = Argon2Params{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 2,
	KeyLen:  32,
	SaltLen: 16,
}

const argon2Format = "$argon2id$v=19$t=%d,m=%d,p=%d$%s$%s"

// Limits on parameters read back from a stored hash. argon2.IDKey panics on
// zero rounds or threads and allocates whatever memory the hash asks for.
const (
	maxArgon2Time   = 16
	maxArgon2Memory = 1 << 20 // KiB
	maxArgon2KeyLen = 1024
)

func HashPassword(password string) (string, error) {
	return HashPasswordWithParams(password, defaultParams)
}

func HashPasswordWithParams(password string, params Argon2Params) (string, error) {
	salt := make([]byte, params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, params.KeyLen)

	encoded := base64.RawStdEncoding.EncodeToString(hash)
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)

	return fmt.Sprintf(argon2Format, params.Time, params.Memory, params.Threads, encodedSalt, encoded), nil
}

// VerifyPassword reports whether password matches encodedHash. Hashes in the
// bcrypt format written by the previous deployment are still accepted. A
// malformed hash is a mismatch, never an error.
func VerifyPassword(password string, encodedHash string) bool {
	if isBcryptHash(encodedHash) {
		return bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password)) == nil
	}

	params, salt, hash, ok := decodeArgon2(encodedHash)
	if !ok {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, params.KeyLen)
	return subtle.ConstantTimeCompare(hash, computed) == 1
}

// NeedsRehash is true for hashes not produced with the current argon2 params.
func NeedsRehash(encodedHash string) bool {
	params, _, _, ok := decodeArgon2(encodedHash)
	if !ok {
		return true
	}
	return params.Time != defaultParams.Time || params.Memory != defaultParams.Memory || params.Threads != defaultParams.Threads
}

func isBcryptHash(h string) bool {
	return strings.HasPrefix(h, "$2a$") || strings.HasPrefix(h, "$2b$") || strings.HasPrefix(h, "$2y$")
}

func decodeArgon2(encodedHash string) (Argon2Params, []byte, []byte, bool) {
	// $argon2id$v=19$t=3,m=65536,p=2$<salt>$<hash>
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != "v=19" {
		return Argon2Params{}, nil, nil, false
	}

	var params Argon2Params
	if _, err := fmt.Sscanf(parts[3], "t=%d,m=%d,p=%d", &params.Time, &params.Memory, &params.Threads); err != nil {
		return Argon2Params{}, nil, nil, false
	}
	if params.Time < 1 || params.Time > maxArgon2Time ||
		params.Threads < 1 ||
		params.Memory < 8*uint32(params.Threads) || params.Memory > maxArgon2Memory {
		return Argon2Params{}, nil, nil, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return Argon2Params{}, nil, nil, false
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 || len(hash) > maxArgon2KeyLen {
		return Argon2Params{}, nil, nil, false
	}

	params.KeyLen = uint32(len(hash))
	params.SaltLen = uint32(len(salt))
	return params, salt, hash, true
}
