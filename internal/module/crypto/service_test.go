package crypto

import (
	"strings"
	"testing"

	"github.com/dukkan/server/internal/shared/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(&config.SecurityConfig{
		Environment:      "test",
		EncryptionSecret: "test-encryption-secret",
		SigningSecret:    "test-signing-secret",
	}, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestNewService(t *testing.T) {
	t.Run("Fails without secrets in production", func(t *testing.T) {
		_, err := NewService(&config.SecurityConfig{Environment: "production"}, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingSecret)
	})

	t.Run("Falls back to development default outside production", func(t *testing.T) {
		svc, err := NewService(&config.SecurityConfig{Environment: "development"}, zap.NewNop())
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})
}

func TestDeriveKey(t *testing.T) {
	t.Run("Deterministic for same secret", func(t *testing.T) {
		assert.Equal(t, DeriveKey("secret-a"), DeriveKey("secret-a"))
	})

	t.Run("Different secrets yield different keys", func(t *testing.T) {
		assert.NotEqual(t, DeriveKey("secret-a"), DeriveKey("secret-b"))
	})

	t.Run("Produces 32 bytes", func(t *testing.T) {
		assert.Len(t, DeriveKey("secret"), 32)
	})
}

func TestEncryptDecrypt(t *testing.T) {
	svc := newTestService(t)

	t.Run("Round trip", func(t *testing.T) {
		encrypted, err := svc.Encrypt("4242424242424242")
		require.NoError(t, err)

		decrypted, err := svc.Decrypt(encrypted)
		require.NoError(t, err)
		assert.Equal(t, "4242424242424242", decrypted)
	})

	t.Run("Output has nonce:tag:ciphertext shape", func(t *testing.T) {
		encrypted, err := svc.Encrypt("hello")
		require.NoError(t, err)

		parts := strings.Split(encrypted, ":")
		require.Len(t, parts, 3)
		assert.Len(t, parts[0], 24) // 12-byte GCM nonce
		assert.Len(t, parts[1], 32) // 16-byte tag
	})

	t.Run("Same plaintext encrypts differently each time", func(t *testing.T) {
		a, err := svc.Encrypt("same input")
		require.NoError(t, err)
		b, err := svc.Encrypt("same input")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("Tampered ciphertext fails closed", func(t *testing.T) {
		encrypted, err := svc.Encrypt("sensitive")
		require.NoError(t, err)

		parts := strings.Split(encrypted, ":")
		last := parts[2][len(parts[2])-1]
		flipped := "0"
		if last == '0' {
			flipped = "1"
		}
		tampered := parts[0] + ":" + parts[1] + ":" + parts[2][:len(parts[2])-1] + flipped

		_, err = svc.Decrypt(tampered)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("Malformed input fails closed", func(t *testing.T) {
		for _, input := range []string{"", "abc", "a:b", "zz:zz:zz", "a:b:c:d"} {
			_, err := svc.Decrypt(input)
			assert.ErrorIs(t, err, ErrDecryptionFailed, "input %q", input)
		}
	})

	t.Run("Different key cannot decrypt", func(t *testing.T) {
		other, err := NewService(&config.SecurityConfig{
			Environment:      "test",
			EncryptionSecret: "another-secret",
			SigningSecret:    "another-signing-secret",
		}, zap.NewNop())
		require.NoError(t, err)

		encrypted, err := svc.Encrypt("secret payload")
		require.NoError(t, err)

		_, err = other.Decrypt(encrypted)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})
}

func TestSignVerify(t *testing.T) {
	svc := newTestService(t)

	t.Run("Valid signature verifies", func(t *testing.T) {
		sig := svc.Sign("payload")
		assert.True(t, svc.VerifySignature("payload", sig))
	})

	t.Run("Deterministic for same input", func(t *testing.T) {
		assert.Equal(t, svc.Sign("payload"), svc.Sign("payload"))
	})

	t.Run("Modified data fails", func(t *testing.T) {
		sig := svc.Sign("payload")
		assert.False(t, svc.VerifySignature("payload2", sig))
	})

	t.Run("Modified signature fails", func(t *testing.T) {
		sig := svc.Sign("payload")
		flipped := "0"
		if sig[0] == '0' {
			flipped = "1"
		}
		assert.False(t, svc.VerifySignature("payload", flipped+sig[1:]))
	})

	t.Run("Malformed hex fails without error", func(t *testing.T) {
		assert.False(t, svc.VerifySignature("payload", "not-hex"))
		assert.False(t, svc.VerifySignature("payload", ""))
	})

	t.Run("Truncated signature fails", func(t *testing.T) {
		sig := svc.Sign("payload")
		assert.False(t, svc.VerifySignature("payload", sig[:32]))
	})
}

func TestSignWithKey(t *testing.T) {
	t.Run("Round trip with explicit key", func(t *testing.T) {
		key := []byte("merchant-api-key")
		sig := SignWithKey("data", key)
		assert.True(t, VerifyWithKey("data", sig, key))
		assert.False(t, VerifyWithKey("data", sig, []byte("other-key")))
	})
}

func TestHash(t *testing.T) {
	t.Run("Deterministic hex digest", func(t *testing.T) {
		assert.Equal(t, Hash("data"), Hash("data"))
		assert.Len(t, Hash("data"), 64)
		assert.NotEqual(t, Hash("data"), Hash("data2"))
	})
}

func TestGenerateSecureToken(t *testing.T) {
	t.Run("Produces hex of twice the byte length", func(t *testing.T) {
		token, err := GenerateSecureToken(16)
		require.NoError(t, err)
		assert.Len(t, token, 32)
	})

	t.Run("Tokens are unique", func(t *testing.T) {
		a, err := GenerateSecureToken(16)
		require.NoError(t, err)
		b, err := GenerateSecureToken(16)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

func TestMaskCardNumber(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Standard 16-digit card", "4242424242424242", "************4242"},
		{"Card with spaces", "4242 4242 4242 4242", "************4242"},
		{"Short input fully masked", "1234", "****"},
		{"Empty input", "", ""},
		{"Non-digit characters stripped", "4242-4242-4242-4242", "************4242"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskCardNumber(tt.input))
		})
	}
}

func TestTokenize(t *testing.T) {
	svc := newTestService(t)

	t.Run("Round trip", func(t *testing.T) {
		token, err := svc.Tokenize("4242424242424242")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(token, "tok_"))

		card, err := svc.Detokenize(token)
		require.NoError(t, err)
		assert.Equal(t, "4242424242424242", card)
	})

	t.Run("Detokenize rejects foreign strings", func(t *testing.T) {
		_, err := svc.Detokenize("4242424242424242")
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})
}
