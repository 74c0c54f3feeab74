package throttle

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// Limiter caps aggregate read throughput across every stream sharing it.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter returns nil when bytesPerSec is not positive.
func NewLimiter(bytesPerSec int) *Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	return &Limiter{lim: rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec)}
}

// Reader wraps r so every read waits for tokens. A nil Limiter returns r unchanged.
func (l *Limiter) Reader(ctx context.Context, r io.Reader) io.Reader {
	if l == nil {
		return r
	}
	return &limitedReader{ctx: ctx, r: r, lim: l.lim}
}

type limitedReader struct {
	ctx context.Context
	r   io.Reader
	lim *rate.Limiter
}

func (lr *limitedReader) Read(p []byte) (int, error) {
	// Never ask for more than the burst or WaitN fails outright.
	if burst := lr.lim.Burst(); len(p) > burst {
		p = p[:burst]
	}

	n, err := lr.r.Read(p)
	if n > 0 {
		if werr := lr.lim.WaitN(lr.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
