/*
Package assembler joins ordered byte sources into one lazily read stream.

Sources are opened strictly in order: source i+1 is opened only once source i
has been read to EOF and closed, so at most one source's data is held at a
time and the output is the exact concatenation of the inputs.
*/
package assembler

import (
	"bytes"
	"context"
	"errors"
	"io"
)

// Source is one ordered piece of a stream
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// SourceFunc adapts a function to a Source
type SourceFunc func(ctx context.Context) (io.ReadCloser, error)

func (f SourceFunc) Open(ctx context.Context) (io.ReadCloser, error) {
	return f(ctx)
}

type bytesSource []byte

// Bytes is a Source over an in-memory buffer
func Bytes(data []byte) Source {
	return bytesSource(data)
}

func (b bytesSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

type concatSource []Source

// Concat returns a Source that yields each source in turn. The result is
// itself a Source so concatenations nest. Opening it never opens a source;
// the first source is opened on the first Read.
func Concat(sources ...Source) Source {
	return concatSource(sources)
}

func (cs concatSource) Open(ctx context.Context) (io.ReadCloser, error) {
	pending := make([]Source, len(cs))
	copy(pending, cs)
	return &reader{ctx: ctx, pending: pending}, nil
}

type reader struct {
	ctx     context.Context
	pending []Source
	current io.ReadCloser
	err     error
}

var errClosed = errors.New("assembler: read after close")

func (r *reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	for {
		if r.current == nil {
			if len(r.pending) == 0 {
				return 0, io.EOF
			}
			// stop issuing reads once the consumer has gone away
			if err := r.ctx.Err(); err != nil {
				r.err = err
				return 0, err
			}
			next := r.pending[0]
			r.pending[0] = nil
			r.pending = r.pending[1:]
			current, err := next.Open(r.ctx)
			if err != nil {
				r.err = err
				return 0, err
			}
			r.current = current
		}
		n, err := r.current.Read(p)
		if err == io.EOF {
			closeErr := r.current.Close()
			r.current = nil
			if closeErr != nil {
				r.err = closeErr
				return n, closeErr
			}
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			r.err = err
		}
		return n, err
	}
}

func (r *reader) Close() error {
	r.pending = nil
	if r.err == nil {
		r.err = errClosed
	}
	if r.current == nil {
		return nil
	}
	err := r.current.Close()
	r.current = nil
	return err
}

// Peek consumes up to n bytes of r for inspection and returns them together
// with a reader that yields the same prefix followed by the rest of r. A
// short stream is not an error.
func Peek(r io.Reader, n int) ([]byte, io.Reader, error) {
	prefix := make([]byte, n)
	read, err := io.ReadFull(r, prefix)
	prefix = prefix[:read]
	switch {
	case err == nil:
		return prefix, io.MultiReader(bytes.NewReader(prefix), r), nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return prefix, bytes.NewReader(prefix), nil
	default:
		return prefix, nil, err
	}
}
