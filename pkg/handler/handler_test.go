package handler_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-unixfsnode/data"
	"github.com/nearfs/gateway/internal/testutil"
	"github.com/nearfs/gateway/pkg/blockstore"
	"github.com/nearfs/gateway/pkg/blockstore/dsstore"
	"github.com/nearfs/gateway/pkg/cidcodec"
	"github.com/nearfs/gateway/pkg/handler"
	"github.com/nearfs/gateway/pkg/resolver"
	"github.com/stretchr/testify/require"
)

// hidingStore drops a single block from an otherwise complete store
type hidingStore struct {
	blockstore.Store
	hidden []byte
}

func (hs *hidingStore) Get(ctx context.Context, digest []byte) ([]byte, error) {
	if hs.hidden != nil && string(digest) == string(hs.hidden) {
		return nil, blockstore.ErrNotFound
	}
	return hs.Store.Get(ctx, digest)
}

type fixture struct {
	store   *hidingStore
	dag     *testutil.DAG
	handler *handler.Handler
	now     time.Time
}

func newFixture(t *testing.T, opts ...handler.Option) *fixture {
	store := &hidingStore{Store: dsstore.NewMemory()}
	f := &fixture{
		store: store,
		dag:   testutil.NewDAG(t, store.Store),
		now:   time.Unix(1700000000, 0),
	}
	opts = append([]handler.Option{handler.WithClock(func() time.Time { return f.now })}, opts...)
	f.handler = handler.NewHandler(resolver.New(store), store, opts...)
	return f
}

func (f *fixture) do(method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) get(target string) *httptest.ResponseRecorder {
	return f.do(http.MethodGet, target, nil)
}

func ipfsPath(c cid.Cid, rest string) string {
	return "/ipfs/" + cidcodec.Encode(c) + rest
}

func TestServeRawBlock(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	hello := f.dag.Raw([]byte("Hello, World\n"))

	rec := f.get(ipfsPath(hello, ""))
	req.Equal(http.StatusOK, rec.Code)
	req.Equal("Hello, World\n", rec.Body.String())
	req.Contains(rec.Header().Get("Content-Type"), "text/plain")
	req.Equal("13", rec.Header().Get("Content-Length"))
	req.Equal(`W/"`+cidcodec.Encode(hello)+`"`, rec.Header().Get("ETag"))
	req.Equal("public, max-age=29030400, immutable", rec.Header().Get("Cache-Control"))
}

func TestNotFound(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	rec := f.get(ipfsPath(testutil.GenerateCid(), ""))
	req.Equal(http.StatusNotFound, rec.Code)

	dir := f.dag.Dir(testutil.Entry{Name: "a.txt", Cid: f.dag.Raw([]byte("a")), Size: 1})
	rec = f.get(ipfsPath(dir, "/b.txt"))
	req.Equal(http.StatusNotFound, rec.Code)
}

func TestBadRequests(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	req.Equal(http.StatusBadRequest, f.get("/ipfs/not-a-cid").Code)
	req.Equal(http.StatusBadRequest, f.get("/ipfs/").Code)
	req.Equal(http.StatusNotFound, f.get("/nowhere").Code)

	hello := f.dag.Raw([]byte("hello"))
	rec := f.do(http.MethodPost, ipfsPath(hello, ""), nil)
	req.Equal(http.StatusMethodNotAllowed, rec.Code)
	req.Equal("GET, HEAD", rec.Header().Get("Allow"))
}

func TestWelcome(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	rec := f.get("/")
	req.Equal(http.StatusOK, rec.Code)
	req.Equal("text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	req.Contains(rec.Body.String(), "nearfs")
}

func TestDirectory(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	empty := f.dag.Dir()

	rec := f.get(ipfsPath(empty, "/"))
	req.Equal(http.StatusOK, rec.Code)
	req.Equal("text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	req.Contains(rec.Body.String(), "<ul></ul>")

	dir := f.dag.Dir(
		testutil.Entry{Name: "a b.txt", Cid: f.dag.Raw([]byte("a")), Size: 1},
		testutil.Entry{Name: "style.css", Cid: f.dag.Raw([]byte("body {}")), Size: 7},
	)
	rec = f.get(ipfsPath(dir, "/"))
	req.Equal(http.StatusOK, rec.Code)
	body := rec.Body.String()
	req.Contains(body, `<a href="./a%20b.txt">a b.txt</a>`)
	req.Less(strings.Index(body, "a b.txt"), strings.Index(body, "style.css"))

	rec = f.get(ipfsPath(dir, "/style.css"))
	req.Equal(http.StatusOK, rec.Code)
	req.Equal("text/css; charset=utf-8", rec.Header().Get("Content-Type"))
	req.Equal("body {}", rec.Body.String())
}

func TestDirectoryRedirect(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	dir := f.dag.Dir(testutil.Entry{Name: "a.txt", Cid: f.dag.Raw([]byte("a")), Size: 1})
	outer := f.dag.Dir(testutil.Entry{Name: "sub", Cid: dir})

	rec := f.get(ipfsPath(dir, "?x=1"))
	req.Equal(http.StatusMovedPermanently, rec.Code)
	req.Equal(ipfsPath(dir, "/?x=1"), rec.Header().Get("Location"))

	rec = f.get(ipfsPath(outer, "/sub"))
	req.Equal(http.StatusMovedPermanently, rec.Code)
	req.Equal(ipfsPath(outer, "/sub/"), rec.Header().Get("Location"))
}

func TestIndexDocument(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	index := f.dag.Raw([]byte("<html><body>home</body></html>"))
	dir := f.dag.Dir(testutil.Entry{Name: "index.html", Cid: index, Size: 30})

	rec := f.get(ipfsPath(dir, "/"))
	req.Equal(http.StatusOK, rec.Code)
	req.Equal("text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	req.Equal("<html><body>home</body></html>", rec.Body.String())
	// the ETag names the document that was served
	req.Equal(`W/"`+cidcodec.Encode(index)+`"`, rec.Header().Get("ETag"))
}

func TestSniffHTML(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	page := f.dag.Raw([]byte("<!doctype html><title>x</title>"))
	rec := f.get(ipfsPath(page, ""))
	req.Equal(http.StatusOK, rec.Code)
	req.Equal("text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	req.Equal("<!doctype html><title>x</title>", rec.Body.String())
}

func TestSubdomain(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	page := f.dag.Raw([]byte("subdomain content"))
	dir := f.dag.Dir(testutil.Entry{Name: "page.txt", Cid: page, Size: 17})

	r := httptest.NewRequest(http.MethodGet, "/page.txt", nil)
	r.Host = cidcodec.Encode(dir) + ".ipfs.localhost:3000"
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, r)
	req.Equal(http.StatusOK, rec.Code)
	req.Equal("subdomain content", rec.Body.String())

	// hosts whose first label is not a CID route normally
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Host = "www.example.com"
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, r)
	req.Equal(http.StatusOK, rec.Code)
	req.Contains(rec.Body.String(), "nearfs")
}

func TestConditionalGet(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	hello := f.dag.Raw([]byte("hello"))
	etag := `W/"` + cidcodec.Encode(hello) + `"`

	rec := f.do(http.MethodGet, ipfsPath(hello, ""), http.Header{"If-None-Match": {etag}})
	req.Equal(http.StatusNotModified, rec.Code)
	req.Empty(rec.Body.String())

	rec = f.do(http.MethodGet, ipfsPath(hello, ""), http.Header{"If-None-Match": {`"other", "` + cidcodec.Encode(hello) + `"`}})
	req.Equal(http.StatusNotModified, rec.Code)

	rec = f.do(http.MethodGet, ipfsPath(hello, ""), http.Header{"If-None-Match": {`W/"other"`}})
	req.Equal(http.StatusOK, rec.Code)
}

func TestHead(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	content := testutil.RandomBytes(10000)
	file, _ := f.dag.File(content, 1024)

	rec := f.do(http.MethodHead, ipfsPath(file, ""), nil)
	req.Equal(http.StatusOK, rec.Code)
	req.Equal("10000", rec.Header().Get("Content-Length"))
	req.Empty(rec.Body.Bytes())
}

func TestFilenameAttachment(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	hello := f.dag.Raw([]byte(`{"a": 1}`))
	rec := f.get(ipfsPath(hello, "?filename=report.json"))
	req.Equal(http.StatusOK, rec.Code)
	req.Equal(`attachment; filename=report.json`, rec.Header().Get("Content-Disposition"))
	req.Equal("application/json", rec.Header().Get("Content-Type"))
}

func TestChunkedFile(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	content := testutil.RandomBytes(300000)
	file, _ := f.dag.File(content, 4096)
	rec := f.get(ipfsPath(file, ""))
	req.Equal(http.StatusOK, rec.Code)
	req.Equal(content, rec.Body.Bytes())
}

func TestMissingRootChunkBeforeHeaders(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	first := f.dag.Raw([]byte("first chunk "))
	second := f.dag.Raw([]byte("second chunk"))
	file := f.dag.Node([]testutil.PBLink{
		{NoName: true, Cid: first, Tsize: 12},
		{NoName: true, Cid: second, Tsize: 12},
	}, nil)
	f.store.hidden = cidcodec.Digest(first)

	// the first chunk is read before any header is written
	rec := f.get(ipfsPath(file, ""))
	req.Equal(http.StatusNotFound, rec.Code)
}

func TestMissingOnlyChunk(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	chunk := f.dag.Raw([]byte("only"))
	file := f.dag.Node([]testutil.PBLink{{NoName: true, Cid: chunk, Tsize: 4}},
		testutil.UnixFS(t, data.Data_File, nil, 4, 4))
	dir := f.dag.Dir(testutil.Entry{Name: "only.txt", Cid: file, Size: 4})

	rec := f.get(ipfsPath(dir, "/only.txt"))
	req.Equal(http.StatusOK, rec.Code)
	req.Equal("only", rec.Body.String())

	f.store.hidden = cidcodec.Digest(chunk)
	rec = f.get(ipfsPath(dir, "/only.txt"))
	req.Equal(http.StatusNotFound, rec.Code)
	rec = f.get(ipfsPath(file, ""))
	req.Equal(http.StatusNotFound, rec.Code)
}

func TestAbortMidStream(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	content := testutil.RandomBytes(64 * 1024)
	file, _ := f.dag.File(content, 1024)
	// the last chunk of a balanced DAG is a raw leaf over the final 1024 bytes
	last, err := cidcodec.Sum(cidcodec.Raw, content[len(content)-1024:])
	req.NoError(err)
	f.store.hidden = cidcodec.Digest(last)

	server := httptest.NewServer(f.handler)
	defer server.Close()
	resp, err := http.Get(server.URL + ipfsPath(file, "?filename=data.bin"))
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)
	_, err = io.ReadAll(resp.Body)
	req.Error(err)
}

func TestHealthz(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, handler.WithHealthzMaxAge(time.Minute))

	req.Equal(http.StatusInternalServerError, f.get("/healthz").Code)

	req.NoError(f.store.SetLatestHeight(ctx, 100))
	// height without a timestamp is not healthy
	req.Equal(http.StatusInternalServerError, f.get("/healthz").Code)

	req.NoError(f.store.SetLatestTimestamp(ctx, f.now.Add(-10*time.Second).UnixNano()))
	req.Equal(http.StatusNoContent, f.get("/healthz").Code)

	f.now = f.now.Add(2 * time.Minute)
	req.Equal(http.StatusInternalServerError, f.get("/healthz").Code)
}

func TestWrappedCORS(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, handler.WithGzip(true))
	hello := f.dag.Raw([]byte(strings.Repeat("compressible ", 200)))

	r := httptest.NewRequest(http.MethodGet, ipfsPath(hello, ""), nil)
	r.Header.Set("Origin", "https://example.com")
	r.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	f.handler.Wrapped().ServeHTTP(rec, r)
	req.Equal(http.StatusOK, rec.Code)
	req.NotEmpty(rec.Header().Get("Access-Control-Allow-Origin"))
	req.Equal("gzip", rec.Header().Get("Content-Encoding"))
}
