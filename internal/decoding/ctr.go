package decoding

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// ctrDecrypter is plain AES-CTR. The nonce is the initial 128-bit big-endian
// counter, which is exactly what cipher.NewCTR takes as its IV.
type ctrDecrypter struct {
	stream cipher.Stream
}

func newCTR(key, nonce []byte) (*ctrDecrypter, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes key: %w", err)
	}
	if len(nonce) != aes.BlockSize {
		return nil, fmt.Errorf("ctr nonce must be %d bytes, got %d", aes.BlockSize, len(nonce))
	}
	return &ctrDecrypter{stream: cipher.NewCTR(block, nonce)}, nil
}

func (d *ctrDecrypter) Update(p []byte) []byte {
	out := make([]byte, len(p))
	d.stream.XORKeyStream(out, p)
	return out
}

func (d *ctrDecrypter) Final() []byte { return nil }
