package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	"github.com/keyxmakerx/rootapp/internal/config"
)

// errMalformedHash is returned when a stored hash cannot be parsed.
var errMalformedHash = errors.New("malformed password hash")

// PasswordHasher hashes and verifies passwords. Hash output is
// self-describing: it embeds the algorithm, parameters, and salt.
type PasswordHasher interface {
	Hash(raw string) (string, error)

	// Verify reports whether raw matches encoded. A wrong password is
	// (false, nil); an error means the stored hash itself is unusable.
	Verify(raw, encoded string) (bool, error)
}

// HashedPassword is a password hash produced by a PasswordHasher. The
// credential repository only accepts this type for password writes, so a
// raw password can never reach the password_hash column.
type HashedPassword struct {
	encoded string
}

// Encoded returns the stored form of the hash.
func (h HashedPassword) Encoded() string { return h.encoded }

// IsZero reports whether h was never produced by a hasher.
func (h HashedPassword) IsZero() bool { return h.encoded == "" }

// --- bcrypt ---

type bcryptHasher struct {
	cost int
}

func (h *bcryptHasher) Hash(raw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(raw), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(b), nil
}

func (h *bcryptHasher) Verify(raw, encoded string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(raw))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", errMalformedHash, err)
	}
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

// --- argon2id ---

// argon2id parameters follow the OWASP recommendation for self-hosted
// deployments: memory=64MB, iterations=3, parallelism=4.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // 64 MB in KiB
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

const argonPrefix = "$argon2id$"

type argon2Hasher struct {
	time    uint32
	memory  uint32
	threads uint8
	keyLen  uint32
	saltLen int
}

func defaultArgon2Hasher() *argon2Hasher {
	return &argon2Hasher{
		time:    argonTime,
		memory:  argonMemory,
		threads: argonThreads,
		keyLen:  argonKeyLen,
		saltLen: argonSaltLen,
	}
}

// Hash produces a PHC string: $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
func (h *argon2Hasher) Hash(raw string) (string, error) {
	salt := make([]byte, h.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(raw), salt, h.time, h.memory, h.threads, h.keyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.memory, h.time, h.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h *argon2Hasher) Verify(raw, encoded string) (bool, error) {
	p, err := parseArgon2(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(raw), p.salt, p.time, p.memory, p.threads, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(p.key, computed) == 1, nil
}

// sameParams reports whether encoded was produced with h's parameters.
func (h *argon2Hasher) sameParams(encoded string) bool {
	p, err := parseArgon2(encoded)
	if err != nil {
		return false
	}
	return p.time == h.time && p.memory == h.memory && p.threads == h.threads &&
		uint32(len(p.key)) == h.keyLen
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func parseArgon2(encoded string) (*argon2Params, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, errMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, errMalformedHash
	}

	p := &argon2Params{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return nil, errMalformedHash
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, errMalformedHash
	}
	if p.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(p.key) == 0 {
		return nil, errMalformedHash
	}
	return p, nil
}

// --- selection ---

// multiHasher hashes with the configured algorithm and verifies whichever
// algorithm produced the stored hash, so switching PASSWORD_HASHER never
// locks anyone out.
type multiHasher struct {
	algorithm string
	bcrypt    *bcryptHasher
	argon     *argon2Hasher
}

// NewPasswordHasher returns a hasher producing new hashes with algorithm
// (bcrypt or argon2id).
func NewPasswordHasher(algorithm string, bcryptCost int) (PasswordHasher, error) {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", bcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	switch algorithm {
	case config.HasherBcrypt, config.HasherArgon2id:
	default:
		return nil, fmt.Errorf("unknown password hasher %q", algorithm)
	}

	return &multiHasher{
		algorithm: algorithm,
		bcrypt:    &bcryptHasher{cost: bcryptCost},
		argon:     defaultArgon2Hasher(),
	}, nil
}

func (m *multiHasher) Hash(raw string) (string, error) {
	if m.algorithm == config.HasherArgon2id {
		return m.argon.Hash(raw)
	}
	return m.bcrypt.Hash(raw)
}

func (m *multiHasher) Verify(raw, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, argonPrefix):
		return m.argon.Verify(raw, encoded)
	case isBcrypt(encoded):
		return m.bcrypt.Verify(raw, encoded)
	default:
		return false, errMalformedHash
	}
}

// NeedsRehash reports whether encoded was produced by the other algorithm
// or with different parameters than new hashes use.
func (m *multiHasher) NeedsRehash(encoded string) bool {
	if m.algorithm == config.HasherArgon2id {
		return !m.argon.sameParams(encoded)
	}
	if !isBcrypt(encoded) {
		return true
	}
	cost, err := bcrypt.Cost([]byte(encoded))
	return err != nil || cost != m.bcrypt.cost
}

// rehasher is implemented by hashers that can tell when a stored hash is
// out of date.
type rehasher interface {
	NeedsRehash(encoded string) bool
}
