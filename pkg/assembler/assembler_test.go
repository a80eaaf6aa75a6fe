package assembler_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/nearfs/gateway/pkg/assembler"
	"github.com/stretchr/testify/require"
)

type trackingSource struct {
	data   []byte
	opened *[]int
	index  int
	err    error
}

func (ts trackingSource) Open(context.Context) (io.ReadCloser, error) {
	*ts.opened = append(*ts.opened, ts.index)
	if ts.err != nil {
		return nil, ts.err
	}
	return io.NopCloser(bytes.NewReader(ts.data)), nil
}

func TestConcatOrdering(t *testing.T) {
	req := require.New(t)
	var opened []int
	chunks := [][]byte{[]byte("Hello"), {}, []byte(", "), []byte("World"), []byte("\n")}
	sources := make([]assembler.Source, 0, len(chunks))
	for i, chunk := range chunks {
		sources = append(sources, trackingSource{data: chunk, opened: &opened, index: i})
	}
	rc, err := assembler.Concat(sources...).Open(context.Background())
	req.NoError(err)
	req.Empty(opened, "sources must not be opened before the first read")

	buf := make([]byte, 3)
	n, err := rc.Read(buf)
	req.NoError(err)
	req.Equal("Hel", string(buf[:n]))
	req.Equal([]int{0}, opened)

	rest, err := io.ReadAll(rc)
	req.NoError(err)
	req.Equal("lo, World\n", string(rest))
	req.Equal([]int{0, 1, 2, 3, 4}, opened)
	req.NoError(rc.Close())
}

func TestConcatSingleSourceIsLazy(t *testing.T) {
	req := require.New(t)
	var opened []int
	boom := errors.New("boom")
	rc, err := assembler.Concat(trackingSource{opened: &opened, err: boom}).Open(context.Background())
	req.NoError(err)
	req.Empty(opened)
	_, err = io.ReadAll(rc)
	req.ErrorIs(err, boom)
	req.Equal([]int{0}, opened)
}

func TestConcatNested(t *testing.T) {
	req := require.New(t)
	inner := assembler.Concat(assembler.Bytes([]byte("b")), assembler.Bytes([]byte("c")))
	outer := assembler.Concat(assembler.Bytes([]byte("a")), inner, assembler.Bytes([]byte("d")))
	rc, err := outer.Open(context.Background())
	req.NoError(err)
	req.NoError(iotest.TestReader(rc, []byte("abcd")))
}

func TestConcatReopen(t *testing.T) {
	req := require.New(t)
	source := assembler.Concat(assembler.Bytes([]byte("x")), assembler.Bytes([]byte("y")))
	for i := 0; i < 2; i++ {
		rc, err := source.Open(context.Background())
		req.NoError(err)
		data, err := io.ReadAll(rc)
		req.NoError(err)
		req.Equal("xy", string(data))
	}
}

func TestConcatFailureMidStream(t *testing.T) {
	req := require.New(t)
	var opened []int
	boom := errors.New("boom")
	source := assembler.Concat(
		trackingSource{data: []byte("first"), opened: &opened, index: 0},
		trackingSource{opened: &opened, index: 1, err: boom},
		trackingSource{data: []byte("never"), opened: &opened, index: 2},
	)
	rc, err := source.Open(context.Background())
	req.NoError(err)
	data, err := io.ReadAll(rc)
	req.ErrorIs(err, boom)
	req.Equal("first", string(data))
	req.Equal([]int{0, 1}, opened)

	_, err = rc.Read(make([]byte, 1))
	req.ErrorIs(err, boom)
}

func TestConcatCancellation(t *testing.T) {
	req := require.New(t)
	var opened []int
	ctx, cancel := context.WithCancel(context.Background())
	source := assembler.Concat(
		trackingSource{data: []byte("first"), opened: &opened, index: 0},
		trackingSource{data: []byte("second"), opened: &opened, index: 1},
	)
	rc, err := source.Open(ctx)
	req.NoError(err)
	buf := make([]byte, 5)
	_, err = io.ReadFull(rc, buf)
	req.NoError(err)
	cancel()
	_, err = io.ReadAll(rc)
	req.ErrorIs(err, context.Canceled)
	req.Equal([]int{0}, opened)
}

func TestPeek(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		n        int
		expected string
	}{
		{name: "longer than prefix", input: "abcdefgh", n: 3, expected: "abc"},
		{name: "exact", input: "abc", n: 3, expected: "abc"},
		{name: "shorter than prefix", input: "ab", n: 4096, expected: "ab"},
		{name: "empty", input: "", n: 16, expected: ""},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			// one byte reads make sure the prefix is gathered across reads
			prefix, rest, err := assembler.Peek(iotest.OneByteReader(bytes.NewReader([]byte(testCase.input))), testCase.n)
			require.NoError(t, err)
			require.Equal(t, testCase.expected, string(prefix))
			all, err := io.ReadAll(rest)
			require.NoError(t, err)
			require.Equal(t, testCase.input, string(all))
		})
	}
}

func TestPeekError(t *testing.T) {
	boom := errors.New("boom")
	_, _, err := assembler.Peek(iotest.ErrReader(boom), 10)
	require.ErrorIs(t, err, boom)
}
