package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	maxKeyLength   uint32 = 1024
	algorithmID           = "argon2id"

	// maxCostFactor bounds the memory and time a stored hash may demand,
	// as a multiple of the configured cost.
	maxCostFactor = 4

	// DefaultMaxPasswordBytes bounds the input fed to argon2 when
	// Config.MaxPasswordBytes is zero.
	DefaultMaxPasswordBytes = 1024

	// dummyPassword seeds the hash used to equalise timing for unknown users.
	dummyPassword = "goaccess-dummy-password-for-timing"
)

// Config holds the argon2id cost parameters.
type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MaxPasswordBytes caps accepted plaintext length. Zero means
	// DefaultMaxPasswordBytes.
	MaxPasswordBytes int
}

// DefaultConfig returns the parameters used when none are configured.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,

		MaxPasswordBytes: DefaultMaxPasswordBytes,
	}
}

// deriveKey is argon2.IDKey; tests replace it to observe the work done.
var deriveKey = argon2.IDKey

// Argon2 hashes and verifies credentials in PHC string format.
//
// Argon2 instances are immutable after construction and safe for concurrent use.
type Argon2 struct {
	config      Config
	dummy       string
	dummyParsed *parsedPHC
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
	keyLength   uint32
}

// NewArgon2 validates cfg and precomputes the dummy hash used by
// [Argon2.DummyHash].
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}

	a := &Argon2{config: cfg}
	dummy, err := a.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}
	a.dummy = dummy
	if a.dummyParsed, err = parsePHC(dummy); err != nil {
		return nil, err
	}

	return a, nil
}

// Hash derives an argon2id key with a fresh random salt, so two calls with the
// same password return different strings. Hash fails with
// [ErrPasswordTooLong] above the configured byte cap and otherwise only when
// the system randomness source fails.
func (a *Argon2) Hash(password string) (string, error) {
	if len(password) > a.config.MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	// Password processing uses raw string bytes exactly as provided (no Unicode normalization).
	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	hash := deriveKey(
		[]byte(password),
		salt,
		a.config.Time,
		a.config.Memory,
		a.config.Parallelism,
		a.config.KeyLength,
	)

	saltEncoded := base64.StdEncoding.EncodeToString(salt)
	hashEncoded := base64.StdEncoding.EncodeToString(hash)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		saltEncoded,
		hashEncoded,
	), nil
}

// Verify reports whether password matches encodedHash. Malformed or
// unsupported hashes report false.
func (a *Argon2) Verify(password string, encodedHash string) bool {
	ok, _ := a.Check(password, encodedHash)
	return ok
}

// Check is Verify with the parse error exposed, for callers that log
// malformed stored hashes. A non-nil error always comes with false.
func (a *Argon2) Check(password string, encodedHash string) (bool, error) {
	if len(password) > a.config.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}
	if isBcrypt(encodedHash) {
		ok, err := checkBcrypt(password, encodedHash)
		if err != nil {
			a.spend(password)
		}
		return ok, err
	}

	parsed, err := a.parseStored(encodedHash)
	if err != nil {
		// A broken stored hash costs as much as a wrong password.
		a.spend(password)
		return false, err
	}

	computed := deriveKey(
		[]byte(password),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		parsed.keyLength,
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// spend runs one verification against the dummy hash and discards the result.
func (a *Argon2) spend(password string) {
	d := a.dummyParsed
	computed := deriveKey([]byte(password), d.salt, d.time, d.memory, d.parallelism, d.keyLength)
	_ = subtle.ConstantTimeCompare(computed, d.hash)
}

// parseStored parses encodedHash and rejects parameters that would cost more
// than maxCostFactor times the configured memory or time.
func (a *Argon2) parseStored(encodedHash string) (*parsedPHC, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return nil, err
	}
	if uint64(parsed.memory) > maxCostFactor*uint64(a.config.Memory) ||
		uint64(parsed.time) > maxCostFactor*uint64(a.config.Time) ||
		parsed.keyLength > maxKeyLength {
		return nil, ErrInvalidFormat
	}
	return parsed, nil
}

// NeedsUpgrade returns true when encodedHash was produced with weaker
// parameters than the configured ones or by the legacy bcrypt scheme.
// Unparseable hashes report false: there is nothing to upgrade from.
func (a *Argon2) NeedsUpgrade(encodedHash string) bool {
	if isBcrypt(encodedHash) {
		return true
	}

	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false
	}

	return a.config.Memory > parsed.memory ||
		a.config.Time > parsed.time ||
		a.config.Parallelism > parsed.parallelism ||
		a.config.KeyLength != parsed.keyLength
}

// DummyHash returns a valid hash of a fixed throwaway password. Verifying
// against it costs the same as verifying a real credential.
func (a *Argon2) DummyHash() string {
	return a.dummy
}

// Params returns the configured cost parameters.
func (a *Argon2) Params() Config {
	return a.config
}

func parsePHC(encodedHash string) (*parsedPHC, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, ErrInvalidFormat
	}

	if parts[1] != algorithmID {
		return nil, ErrUnsupportedAlgorithm
	}

	versionPart := parts[2]
	if !strings.HasPrefix(versionPart, "v=") {
		return nil, errors.New("missing argon2 version")
	}

	version, err := strconv.Atoi(strings.TrimPrefix(versionPart, "v="))
	if err != nil {
		return nil, errors.New("invalid argon2 version")
	}
	if version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	params, err := parseParams(parts[3])
	if err != nil {
		return nil, err
	}

	salt, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, errors.New("invalid salt encoding")
	}
	if len(salt) < int(minSaltLength) {
		return nil, errors.New("invalid salt length")
	}

	hash, err := base64.StdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, errors.New("invalid hash encoding")
	}
	if len(hash) < int(minKeyLength) {
		return nil, errors.New("invalid hash length")
	}

	return &parsedPHC{
		memory:      params.memory,
		time:        params.time,
		parallelism: params.parallelism,
		salt:        salt,
		hash:        hash,
		keyLength:   uint32(len(hash)),
	}, nil
}

type parsedParams struct {
	memory      uint32
	time        uint32
	parallelism uint8
}

func parseParams(part string) (*parsedParams, error) {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return nil, errors.New("invalid parameter format")
	}

	var (
		memorySet, timeSet, parallelismSet bool
		params                             parsedParams
	)

	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, errors.New("invalid parameter entry")
		}

		switch kv[0] {
		case "m":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return nil, errors.New("invalid memory parameter")
			}
			params.memory = uint32(v)
			memorySet = true
		case "t":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return nil, errors.New("invalid time parameter")
			}
			params.time = uint32(v)
			timeSet = true
		case "p":
			v, err := strconv.ParseUint(kv[1], 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return nil, errors.New("invalid parallelism parameter")
			}
			params.parallelism = uint8(v)
			parallelismSet = true
		default:
			return nil, errors.New("unsupported parameter")
		}
	}

	if !memorySet || !timeSet || !parallelismSet {
		return nil, errors.New("missing parameters")
	}

	return &params, nil
}

func validateConfig(cfg Config) error {
	if cfg.Memory < minMemoryKB {
		return errors.New("password memory must be >= 8192 KB")
	}
	if cfg.Time < minTimeCost {
		return errors.New("password time must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return errors.New("password parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}
	if cfg.MaxPasswordBytes < 0 {
		return errors.New("password max bytes must be >= 0")
	}

	return nil
}
