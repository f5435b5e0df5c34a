package services

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidCipherKey = errors.New("payload key must be 32 bytes")
	ErrInvalidEnvelope  = errors.New("invalid encrypted payload")
)

// PayloadCipher encrypts response payloads into "base64(iv):base64(ciphertext)" envelopes
type PayloadCipher interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(envelope string) ([]byte, error)
	EncryptJSON(v any) (string, error)
}

// AESPayloadCipher implements PayloadCipher with AES-256-CBC and PKCS7 padding
type AESPayloadCipher struct {
	block cipher.Block
}

// NewPayloadCipher creates a cipher from a raw 32 byte key
func NewPayloadCipher(key []byte) (PayloadCipher, error) {
	if len(key) != 32 {
		return nil, ErrInvalidCipherKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	return &AESPayloadCipher{block: block}, nil
}

// DecodePayloadKey accepts a base64 or raw 32 byte key
func DecodePayloadKey(value string) ([]byte, error) {
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil && len(decoded) == 32 {
		return decoded, nil
	}
	if len(value) == 32 {
		return []byte(value), nil
	}
	return nil, ErrInvalidCipherKey
}

func (c *AESPayloadCipher) Encrypt(plaintext []byte) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(iv) + ":" + base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (c *AESPayloadCipher) Decrypt(envelope string) ([]byte, error) {
	ivPart, ctPart, ok := strings.Cut(envelope, ":")
	if !ok {
		return nil, ErrInvalidEnvelope
	}
	iv, err := base64.StdEncoding.DecodeString(ivPart)
	if err != nil || len(iv) != aes.BlockSize {
		return nil, ErrInvalidEnvelope
	}
	ciphertext, err := base64.StdEncoding.DecodeString(ctPart)
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrInvalidEnvelope
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext, aes.BlockSize)
}

func (c *AESPayloadCipher) EncryptJSON(v any) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return c.Encrypt(body)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidEnvelope
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, ErrInvalidEnvelope
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, ErrInvalidEnvelope
		}
	}
	return data[:len(data)-padding], nil
}
