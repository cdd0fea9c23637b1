package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/dukkan/server/internal/shared/config"
	"go.uber.org/zap"
	"golang.org/x/crypto/pbkdf2"
)

// Module errors.
var (
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrMissingSecret    = errors.New("security secret required in production")
)

const (
	keyIterations = 100_000
	keyLength     = 32
	gcmTagSize    = 16
	tokenPrefix   = "tok_"

	// Development-only fallback. Startup fails before this is ever used
	// in a production configuration.
	devFallbackSecret = "dukkan-dev-insecure-secret"
)

// keySalt is fixed so that the same secret always derives the same key.
var keySalt = []byte("dukkan-payment-core-v1")

// Service provides the cryptographic primitives used by the payment core:
// authenticated encryption for data at rest, HMAC signing for webhook and
// redirect parameters, hashing and secure token generation.
type Service struct {
	aead          cipher.AEAD
	signingSecret []byte
}

// NewService derives the symmetric key from the configured secret and
// prepares the AEAD. An empty secret falls back to a development default,
// which is a hard error when the environment is production.
func NewService(cfg *config.SecurityConfig, logger *zap.Logger) (*Service, error) {
	encSecret := cfg.EncryptionSecret
	if encSecret == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("encryption secret: %w", ErrMissingSecret)
		}
		logger.Warn("no encryption secret configured, using development default")
		encSecret = devFallbackSecret
	}

	signSecret := cfg.SigningSecret
	if signSecret == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("signing secret: %w", ErrMissingSecret)
		}
		logger.Warn("no signing secret configured, using development default")
		signSecret = devFallbackSecret
	}

	key := DeriveKey(encSecret)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	return &Service{
		aead:          aead,
		signingSecret: []byte(signSecret),
	}, nil
}

// DeriveKey derives a 32-byte AES key from a passphrase using PBKDF2-SHA256
// with a fixed salt. Deterministic: the same secret always yields the same key.
func DeriveKey(secret string) []byte {
	return pbkdf2.Key([]byte(secret), keySalt, keyIterations, keyLength, sha256.New)
}

// Encrypt encrypts plaintext with AES-256-GCM using a fresh random nonce.
// Output format: hex(nonce):hex(tag):hex(ciphertext). Two calls with the
// same plaintext never produce the same output.
func (s *Service) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	return fmt.Sprintf("%s:%s:%s",
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	), nil
}

// Decrypt reverses Encrypt. Any malformed input or authentication tag
// mismatch yields ErrDecryptionFailed rather than corrupted plaintext.
func (s *Service) Decrypt(encoded string) (string, error) {
	parts := strings.Split(encoded, ":")
	if len(parts) != 3 {
		return "", ErrDecryptionFailed
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != s.aead.NonceSize() {
		return "", ErrDecryptionFailed
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != gcmTagSize {
		return "", ErrDecryptionFailed
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrDecryptionFailed
	}

	plaintext, err := s.aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// Sign computes an HMAC-SHA256 hex signature over data with the service
// signing secret. Deterministic for identical input and secret.
func (s *Service) Sign(data string) string {
	return SignWithKey(data, s.signingSecret)
}

// VerifySignature recomputes the expected HMAC and compares in constant
// time. Returns false, never an error, on malformed hex, length mismatch
// or verification failure.
func (s *Service) VerifySignature(data, signature string) bool {
	return VerifyWithKey(data, signature, s.signingSecret)
}

// SignWithKey computes an HMAC-SHA256 hex signature with an explicit key.
// Used by the gateway adapter, which signs with per-merchant credentials.
func SignWithKey(data string, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWithKey verifies an HMAC-SHA256 hex signature with an explicit key
// using a constant-time comparison.
func VerifyWithKey(data, signature string, key []byte) bool {
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return hmac.Equal(sig, mac.Sum(nil))
}

// Hash returns the SHA-256 hex digest of data. One-way, unsalted; for
// non-reversible comparison such as deduplication, not for secrets.
func Hash(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// GenerateSecureToken returns a cryptographically secure random hex token.
// The output is length*2 hex characters.
func GenerateSecureToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// MaskCardNumber returns a display-safe card number revealing only the last
// four digits.
func MaskCardNumber(cardNumber string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, cardNumber)

	if len(digits) <= 4 {
		return strings.Repeat("*", len(digits))
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}

// Tokenize encrypts a card number and wraps it in an opaque token.
// Placeholder scheme: real deployments must replace this with a certified
// tokenization provider.
func (s *Service) Tokenize(cardNumber string) (string, error) {
	encrypted, err := s.Encrypt(cardNumber)
	if err != nil {
		return "", err
	}
	return tokenPrefix + encrypted, nil
}

// Detokenize reverses Tokenize.
func (s *Service) Detokenize(token string) (string, error) {
	if !strings.HasPrefix(token, tokenPrefix) {
		return "", ErrDecryptionFailed
	}
	return s.Decrypt(strings.TrimPrefix(token, tokenPrefix))
}
