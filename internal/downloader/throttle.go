package downloader

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

type rateLimitedReader struct {
	reader  io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

// newRateLimitedReader caps r at limit bytes per second. Burst must cover one
// chunk or WaitN would never succeed.
func newRateLimitedReader(ctx context.Context, r io.Reader, limit int64, chunkSize int) io.Reader {
	burst := int(limit)
	if burst < chunkSize {
		burst = chunkSize
	}
	return &rateLimitedReader{
		reader:  r,
		limiter: rate.NewLimiter(rate.Limit(limit), burst),
		ctx:     ctx,
	}
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	if b := r.limiter.Burst(); len(p) > b {
		p = p[:b]
	}
	n, err := r.reader.Read(p)
	if n > 0 {
		if werr := r.limiter.WaitN(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
