package stream

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrStalled is returned when no bytes arrive within the stall timeout.
// The consumer treats it like any transport failure: cleanup, error turn.
var ErrStalled = errors.New("stream stalled: no data within timeout")

type readResult struct {
	data []byte
	err  error
}

// StallReader wraps a reader with a per-read deadline. A connection that
// drops without delivering a terminal event would otherwise block the
// consumer forever; here the wait is bounded and surfaces as ErrStalled.
type StallReader struct {
	timeout  time.Duration
	ctx      context.Context
	ch       chan readResult
	leftover []byte
	err      error
}

func NewStallReader(ctx context.Context, r io.Reader, timeout time.Duration) *StallReader {
	sr := &StallReader{
		timeout: timeout,
		ctx:     ctx,
		ch:      make(chan readResult),
	}

	go func() {
		buf := make([]byte, 32<<10)
		for {
			n, err := r.Read(buf)
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case sr.ch <- readResult{data: data, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	return sr
}

func (sr *StallReader) Read(p []byte) (int, error) {
	if len(sr.leftover) > 0 {
		n := copy(p, sr.leftover)
		sr.leftover = sr.leftover[n:]
		return n, nil
	}
	if sr.err != nil {
		return 0, sr.err
	}

	if sr.timeout <= 0 {
		select {
		case res := <-sr.ch:
			return sr.consume(res, p)
		case <-sr.ctx.Done():
			sr.err = sr.ctx.Err()
			return 0, sr.err
		}
	}

	timer := time.NewTimer(sr.timeout)
	defer timer.Stop()

	select {
	case res := <-sr.ch:
		return sr.consume(res, p)
	case <-timer.C:
		sr.err = ErrStalled
		return 0, ErrStalled
	case <-sr.ctx.Done():
		sr.err = sr.ctx.Err()
		return 0, sr.err
	}
}

func (sr *StallReader) consume(res readResult, p []byte) (int, error) {
	sr.err = res.err
	n := copy(p, res.data)
	sr.leftover = res.data[n:]
	if n == 0 && sr.err != nil {
		return 0, sr.err
	}
	return n, nil
}
