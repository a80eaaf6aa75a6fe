package blockwriter_test

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/nearfs/gateway/internal/testutil"
	"github.com/nearfs/gateway/pkg/blockwriter"
	"github.com/stretchr/testify/require"
)

func TestBlockWriterDrainsOnClose(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer
	writer := blockwriter.NewBlockWriter(&out, 2000)
	var expected bytes.Buffer
	buf := make([]byte, 1500)
	for _, size := range []int{100, 500, 1000, 1000, 200, 1000, 1500, 30, 5000} {
		// the caller reuses its buffer, so writes must be copied
		chunk := testutil.RandomBytes(int64(size))
		copy(buf, chunk)
		if size <= len(buf) {
			chunk = buf[:size]
		}
		expected.Write(chunk)
		n, err := writer.Write(chunk)
		req.NoError(err)
		req.Equal(size, n)
	}
	req.NoError(writer.Close())
	req.Equal(expected.Bytes(), out.Bytes())

	_, err := writer.Write([]byte("late"))
	req.ErrorIs(err, blockwriter.ErrClosed)
}

func TestBlockWriterBackpressure(t *testing.T) {
	req := require.New(t)
	reader, underlying := io.Pipe()
	writer := blockwriter.NewBlockWriter(underlying, 2000)

	var wg sync.WaitGroup
	written := make(chan int, 3)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, size := range []int{1000, 1000, 1000} {
			_, err := writer.Write(make([]byte, size))
			if err != nil {
				return
			}
			written <- size
		}
	}()

	// bytes stay counted until they reach the pipe, so with nobody reading
	// only two writes fit the budget
	select {
	case <-written:
	case <-time.After(time.Second):
		req.FailNow("first write did not complete")
	}
	select {
	case <-written:
	case <-time.After(time.Second):
		req.FailNow("second write did not complete")
	}
	select {
	case <-written:
		req.FailNow("write exceeded the buffer budget")
	case <-time.After(50 * time.Millisecond):
	}

	go func() {
		_, _ = io.Copy(io.Discard, reader)
	}()
	wg.Wait()
	req.NoError(writer.Close())
	_ = underlying.Close()
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestBlockWriterReportsWriteError(t *testing.T) {
	req := require.New(t)
	writer := blockwriter.NewBlockWriter(failingWriter{}, 100)
	_, err := writer.Write([]byte("data"))
	req.NoError(err)
	req.EqualError(writer.Close(), "disk full")
}
