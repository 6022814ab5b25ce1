package mutator

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/turtacn/littlejwt/pkg/claims"
)

// Encrypter is the symmetric cipher behind the encrypted mutator.
type Encrypter interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
}

// XChaChaEncrypter seals values with XChaCha20-Poly1305. The output is
// base64url(nonce || ciphertext).
type XChaChaEncrypter struct {
	aead cipher.AEAD
}

// NewXChaChaEncrypter creates an encrypter from a 32-byte key.
func NewXChaChaEncrypter(key []byte) (*XChaChaEncrypter, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &XChaChaEncrypter{aead: aead}, nil
}

func (x *XChaChaEncrypter) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, x.aead.NonceSize(), x.aead.NonceSize()+len(plaintext)+x.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return claims.EncodeSegment(x.aead.Seal(nonce, nonce, plaintext, nil)), nil
}

func (x *XChaChaEncrypter) Decrypt(ciphertext string) ([]byte, error) {
	data, err := claims.DecodeSegment(ciphertext)
	if err != nil {
		return nil, err
	}
	if len(data) < x.aead.NonceSize()+x.aead.Overhead() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := data[:x.aead.NonceSize()], data[x.aead.NonceSize():]
	return x.aead.Open(nil, nonce, sealed, nil)
}

type encryptedMutator struct {
	enc Encrypter
}

func (m encryptedMutator) Serialize(_ context.Context, _ Target, value interface{}) (interface{}, error) {
	if m.enc == nil {
		return nil, fmt.Errorf("no encrypter configured")
	}
	plain, err := claims.CanonicalJSON(value)
	if err != nil {
		return nil, err
	}
	return m.enc.Encrypt(plain)
}

func (m encryptedMutator) Unserialize(_ context.Context, _ Target, value interface{}) (interface{}, error) {
	if m.enc == nil {
		return nil, fmt.Errorf("no encrypter configured")
	}
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected an encrypted string, got %T", value)
	}
	plain, err := m.enc.Decrypt(s)
	if err != nil {
		return nil, err
	}
	return claims.DecodeValue(plain)
}
