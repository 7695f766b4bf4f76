// Package tokenbox sella en reposo los tokens de providers externos
// (access/refresh) con XChaCha20-Poly1305, y genera los valores opacos
// de un solo uso que emite el callback.
//
// Formato sellado: "v1|" + base64(nonce) + "|" + base64(ciphertext).
// El AAD liga el ciphertext a su fila (tenancy + binding): un token copiado a
// otro binding no abre.
package tokenbox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	version = "v1"
	sep     = "|"
)

var (
	// ErrMalformed indica que el valor sellado no tiene el formato esperado.
	ErrMalformed = errors.New("tokenbox: malformed sealed value")
	// ErrOpen indica fallo de autenticación (clave, AAD o datos alterados).
	ErrOpen = errors.New("tokenbox: authentication failed")
)

// Box sella y abre valores con una clave de 32 bytes.
type Box struct {
	key []byte
}

// New crea un Box desde una clave en base64 (std o raw) o hex de 64 chars.
func New(key string) (*Box, error) {
	k, err := ParseKey(key)
	if err != nil {
		return nil, err
	}
	return &Box{key: k}, nil
}

// ParseKey decodifica una clave de 32 bytes.
func ParseKey(key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("tokenbox: empty key; generate one with: openssl rand -base64 32")
	}
	if b, err := base64.StdEncoding.DecodeString(key); err == nil && len(b) == chacha20poly1305.KeySize {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(key); err == nil && len(b) == chacha20poly1305.KeySize {
		return b, nil
	}
	if len(key) == 2*chacha20poly1305.KeySize {
		if b, err := hex.DecodeString(key); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("tokenbox: key must decode to %d bytes", chacha20poly1305.KeySize)
}

// Seal cifra plain ligado a aad.
func (b *Box) Seal(plain string, aad []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", fmt.Errorf("tokenbox: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("tokenbox: nonce: %w", err)
	}
	ct := aead.Seal(nil, nonce, []byte(plain), aad)
	return version + sep +
		base64.StdEncoding.EncodeToString(nonce) + sep +
		base64.StdEncoding.EncodeToString(ct), nil
}

// Open descifra un valor producido por Seal con el mismo aad.
func (b *Box) Open(sealed string, aad []byte) (string, error) {
	parts := strings.Split(sealed, sep)
	if len(parts) != 3 || parts[0] != version {
		return "", ErrMalformed
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(nonce) != chacha20poly1305.NonceSizeX {
		return "", ErrMalformed
	}
	ct, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", ErrMalformed
	}

	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", fmt.Errorf("tokenbox: %w", err)
	}
	pt, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return "", ErrOpen
	}
	return string(pt), nil
}

// BindingAAD arma el AAD estándar para tokens de un binding.
func BindingAAD(tenancyID, bindingID string) []byte {
	return []byte(tenancyID + sep + bindingID)
}

// GenerateOpaqueToken genera un token opaco aleatorio (base64url sin padding).
func GenerateOpaqueToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SHA256Base64URL devuelve sha256(input) en base64url sin padding; es la
// forma en que se indexan los códigos de un solo uso.
func SHA256Base64URL(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
