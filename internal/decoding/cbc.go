package decoding

import (
	"crypto/cipher"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blowfish"
)

const (
	KeySize   = 16
	BlockSize = blowfish.BlockSize
)

// DeriveBlockKey folds the hex MD5 of seed onto itself and the secret:
// key[i] = h[i] ^ h[i+16] ^ secret[i].
func DeriveBlockKey(seed string, secret []byte) []byte {
	sum := md5.Sum([]byte(seed))
	h := hex.EncodeToString(sum[:])

	key := make([]byte, KeySize)
	for i := range KeySize {
		key[i] = h[i] ^ h[i+KeySize] ^ secret[i]
	}
	return key
}

// cbcDecrypter keeps one chained CBC state for the whole track and buffers
// bytes that do not yet fill a block, so the output is independent of how
// the network split the input.
type cbcDecrypter struct {
	mode    cipher.BlockMode
	pending []byte
}

func newCBC(key, iv []byte) (*cbcDecrypter, error) {
	block, err := blowfish.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("blowfish key: %w", err)
	}
	if len(iv) != BlockSize {
		return nil, fmt.Errorf("blowfish iv must be %d bytes, got %d", BlockSize, len(iv))
	}
	return &cbcDecrypter{mode: cipher.NewCBCDecrypter(block, iv)}, nil
}

func (d *cbcDecrypter) Update(p []byte) []byte {
	d.pending = append(d.pending, p...)

	whole := len(d.pending) / BlockSize * BlockSize
	if whole == 0 {
		return nil
	}

	out := make([]byte, whole)
	d.mode.CryptBlocks(out, d.pending[:whole])

	d.pending = append(d.pending[:0], d.pending[whole:]...)
	return out
}

// Final zero-pads the remainder to one block and decrypts it. Only the bytes
// that were actually received are returned, so output length matches input.
func (d *cbcDecrypter) Final() []byte {
	n := len(d.pending)
	if n == 0 {
		return nil
	}

	block := make([]byte, BlockSize)
	copy(block, d.pending)
	d.mode.CryptBlocks(block, block)
	d.pending = d.pending[:0]

	return block[:n]
}
