package decoding

import (
	"errors"
	"fmt"
	"io"

	"github.com/datallboy/gotrack/internal/domain"
)

// Chunks yields ciphertext chunks in order and returns io.EOF when exhausted.
type Chunks func() ([]byte, error)

// decrypter turns ciphertext into plaintext incrementally.
type decrypter interface {
	// Update returns the plaintext that can be produced from p plus anything buffered.
	Update(p []byte) []byte
	// Final flushes whatever is still buffered.
	Final() []byte
}

// Codec decrypts track payloads. One Codec is shared by every track;
// per-track state lives in the decrypters it creates.
type Codec struct {
	blockSecret []byte
	blockIV     []byte
}

func New(blockSecret, blockIV []byte) *Codec {
	return &Codec{blockSecret: blockSecret, blockIV: blockIV}
}

func (c *Codec) newDecrypter(desc domain.Encryption) (decrypter, error) {
	switch d := desc.(type) {
	case domain.BlockCipherCBC:
		if len(c.blockSecret) != KeySize {
			return nil, fmt.Errorf("%w: block secret must be %d bytes", domain.ErrCodecConfig, KeySize)
		}
		return newCBC(DeriveBlockKey(d.Seed, c.blockSecret), c.blockIV)
	case domain.StreamCipherCTR:
		return newCTR(d.Key, d.Nonce)
	case domain.Plaintext, nil:
		return passthrough{}, nil
	default:
		return nil, fmt.Errorf("unsupported encryption %T", desc)
	}
}

// DecryptStream pulls every chunk from next and writes plaintext to sink in order.
// A failed stream cannot be resumed; callers restart the track from the beginning.
func (c *Codec) DecryptStream(desc domain.Encryption, next Chunks, sink io.Writer) error {
	dec, err := c.newDecrypter(desc)
	if err != nil {
		return err
	}

	for {
		chunk, err := next()
		if len(chunk) > 0 {
			if _, werr := sink.Write(dec.Update(chunk)); werr != nil {
				return fmt.Errorf("write plaintext: %w", werr)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
	}

	if tail := dec.Final(); len(tail) > 0 {
		if _, err := sink.Write(tail); err != nil {
			return fmt.Errorf("write plaintext: %w", err)
		}
	}
	return nil
}

// ReaderChunks adapts r into a Chunks iterator reading up to size bytes at a time.
func ReaderChunks(r io.Reader, size int) Chunks {
	buf := make([]byte, size)
	return func() ([]byte, error) {
		n, err := r.Read(buf)
		return buf[:n], err
	}
}

// Reader decrypts an underlying ciphertext stream as it is read.
type Reader struct {
	src     io.Reader
	dec     decrypter
	buf     []byte
	out     []byte
	drained bool
}

func (c *Codec) NewReader(desc domain.Encryption, r io.Reader) (*Reader, error) {
	dec, err := c.newDecrypter(desc)
	if err != nil {
		return nil, err
	}
	return &Reader{src: r, dec: dec, buf: make([]byte, 32*1024)}, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	for len(r.out) == 0 {
		if r.drained {
			return 0, io.EOF
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.out = r.dec.Update(r.buf[:n])
		}

		if errors.Is(err, io.EOF) {
			r.out = append(r.out, r.dec.Final()...)
			r.drained = true
		} else if err != nil {
			return 0, err
		}
	}

	n := copy(p, r.out)
	r.out = r.out[n:]
	return n, nil
}

type passthrough struct{}

func (passthrough) Update(p []byte) []byte {
	out := make([]byte, len(p))
	copy(out, p)
	return out
}

func (passthrough) Final() []byte { return nil }
