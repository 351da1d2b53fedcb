package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Default Argon2id cost for newly hashed keys. Stored hashes carry their own
// parameters, so raising these does not invalidate existing clients.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
	hashPrefix   = "argon2id"
)

var errHashFormat = errors.New("auth: invalid hash format")

// keyHash is a decoded "argon2id$t$m$p$salt$key" string. The encoding avoids
// ':' and ',' so hashes can sit inside KENKYU_API_CLIENTS.
type keyHash struct {
	time    uint32
	memory  uint32
	threads uint8
	salt    []byte
	key     []byte
}

func (h keyHash) derive(apiKey string) []byte {
	return argon2.IDKey([]byte(apiKey), h.salt, h.time, h.memory, h.threads, uint32(len(h.key)))
}

func (h keyHash) matches(apiKey string) bool {
	return subtle.ConstantTimeCompare(h.key, h.derive(apiKey)) == 1
}

func (h keyHash) String() string {
	return fmt.Sprintf("%s$%d$%d$%d$%s$%s", hashPrefix, h.time, h.memory, h.threads,
		base64.RawStdEncoding.EncodeToString(h.salt),
		base64.RawStdEncoding.EncodeToString(h.key),
	)
}

func parseHash(encoded string) (keyHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != hashPrefix {
		return keyHash{}, errHashFormat
	}
	t, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil || t == 0 {
		return keyHash{}, fmt.Errorf("auth: hash time cost %q: %w", parts[1], errHashFormat)
	}
	m, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil || m < 8 {
		return keyHash{}, fmt.Errorf("auth: hash memory cost %q: %w", parts[2], errHashFormat)
	}
	p, err := strconv.ParseUint(parts[3], 10, 8)
	if err != nil || p == 0 {
		return keyHash{}, fmt.Errorf("auth: hash parallelism %q: %w", parts[3], errHashFormat)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return keyHash{}, fmt.Errorf("auth: decode salt: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return keyHash{}, fmt.Errorf("auth: decode hash: %w", err)
	}
	if len(key) == 0 {
		return keyHash{}, errHashFormat
	}
	return keyHash{time: uint32(t), memory: uint32(m), threads: uint8(p), salt: salt, key: key}, nil
}

// HashAPIKey hashes an API key with Argon2id at the default cost.
func HashAPIKey(apiKey string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	h := keyHash{time: argonTime, memory: argonMemory, threads: argonThreads, salt: salt}
	h.key = argon2.IDKey([]byte(apiKey), salt, h.time, h.memory, h.threads, argonKeyLen)
	return h.String(), nil
}

// DummyVerify burns the same Argon2id work as a real check so that response
// timing does not reveal whether a client ID exists.
func DummyVerify() {
	argon2.IDKey([]byte("dummy"), make([]byte, saltLen), argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifyAPIKey checks an API key against a hash produced by HashAPIKey.
func VerifyAPIKey(apiKey, encoded string) (bool, error) {
	h, err := parseHash(encoded)
	if err != nil {
		return false, err
	}
	return h.matches(apiKey), nil
}
