/*
Package handler implements the HTTP mechanics of serving resolved DAGs

Note: much of this code is cribbed from https://github.com/filecoin-project/boost/blob/main/cmd/booster-http/server.go
*/
package handler

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/fatih/color"
	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	nearfs "github.com/nearfs/gateway/pkg"
	"github.com/nearfs/gateway/pkg/assembler"
	"github.com/nearfs/gateway/pkg/blockstore"
	"github.com/nearfs/gateway/pkg/cidcodec"
	"github.com/nearfs/gateway/pkg/sniff"
	"github.com/rs/cors"
)

var log = logging.Logger("nearfs/handler")

const (
	ipfsPrefix   = "/ipfs/"
	cacheControl = "public, max-age=29030400, immutable"

	DefaultHealthzMaxAge = 60 * time.Second
)

//go:embed welcome.html
var welcomePage []byte

type Option func(*Handler)

// WithGzip compresses responses for clients that accept it. Compressed
// responses carry no Content-Length.
func WithGzip(enabled bool) Option {
	return func(h *Handler) {
		h.gzip = enabled
	}
}

// WithHealthzMaxAge sets how old the last ingested block may be before
// /healthz reports failure
func WithHealthzMaxAge(maxAge time.Duration) Option {
	return func(h *Handler) {
		h.healthzMaxAge = maxAge
	}
}

// WithClock replaces the time source used by /healthz
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// Handler is an HTTP Handler serving files and directories from a resolver
type Handler struct {
	resolver      nearfs.PathResolver
	progress      blockstore.Progress
	mux           *http.ServeMux
	gzip          bool
	healthzMaxAge time.Duration
	now           func() time.Time
}

// NewHandler constructs an http Handler for a resolver. progress backs the
// /healthz probe.
func NewHandler(resolver nearfs.PathResolver, progress blockstore.Progress, opts ...Option) *Handler {
	h := &Handler{
		resolver:      resolver,
		progress:      progress,
		healthzMaxAge: DefaultHealthzMaxAge,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.mux = http.NewServeMux()
	h.mux.HandleFunc("/healthz", h.serveHealthz)
	h.mux.HandleFunc(ipfsPrefix, h.servePath)
	h.mux.HandleFunc("/", h.serveWelcome)
	return h
}

var _ http.Handler = (*Handler)(nil)

// Wrapped returns the handler behind permissive CORS and, when enabled, gzip
func (h *Handler) Wrapped() http.Handler {
	var handler http.Handler = h
	if h.gzip {
		handler = gziphandler.GzipHandler(handler)
	}
	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodHead},
		AllowCredentials: true,
	}).Handler(handler)
}

// writeErrorWatcher calls onError if there is an error writing to the writer
type writeErrorWatcher struct {
	http.ResponseWriter
	count   uint64
	onError func(err error)
}

func (w *writeErrorWatcher) Write(bz []byte) (int, error) {
	count, err := w.ResponseWriter.Write(bz)
	if err != nil {
		w.onError(err)
	}
	w.count += uint64(count)
	return count, err
}

const timeFmt = "2006-01-02T15:04:05.000Z0700"

func alog(l string, args ...interface{}) {
	alogAt(time.Now(), l, args...)
}

func alogAt(at time.Time, l string, args ...interface{}) {
	fmt.Printf(at.Format(timeFmt)+"\t"+l+"\n", args...)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte("Error: " + msg)) //nolint:errcheck
	alog("%s\t%s %s\n%s",
		color.New(color.FgRed).Sprintf("%d", status), r.Method, r.URL, msg)
}

func addCommas(count uint64) string {
	str := fmt.Sprintf("%d", count)
	for i := len(str) - 3; i > 0; i -= 3 {
		str = str[:i] + "," + str[i:]
	}
	return str
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if root, ok := subdomainRoot(r.Host); ok {
		h.serve(w, r, root, r.URL.Path)
		return
	}
	h.mux.ServeHTTP(w, r)
}

// subdomainRoot reports the CID in the leftmost label of hosts such as
// <cid>.ipfs.example.com
func subdomainRoot(host string) (cid.Cid, bool) {
	if hostname, _, err := net.SplitHostPort(host); err == nil {
		host = hostname
	}
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return cid.Undef, false
	}
	root, err := cidcodec.Decode(labels[0])
	if err != nil {
		return cid.Undef, false
	}
	return root, true
}

func (h *Handler) serveWelcome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, r, http.StatusNotFound, fmt.Sprintf("no route for '%s'", r.URL.Path))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(welcomePage) //nolint:errcheck
	}
}

func (h *Handler) serveHealthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	height, hasHeight, err := h.progress.LatestHeight(ctx)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, fmt.Sprintf("reading latest block height: %s", err))
		return
	}
	timestamp, hasTimestamp, err := h.progress.LatestTimestamp(ctx)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, fmt.Sprintf("reading latest block timestamp: %s", err))
		return
	}
	if !hasHeight || !hasTimestamp {
		writeError(w, r, http.StatusInternalServerError, "no block has been ingested yet")
		return
	}
	age := h.now().Sub(time.Unix(0, timestamp))
	if age > h.healthzMaxAge {
		writeError(w, r, http.StatusInternalServerError, fmt.Sprintf("latest block %d is %s old", height, age.Truncate(time.Second)))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) servePath(w http.ResponseWriter, r *http.Request) {
	// remove paths that are too short
	remaining := strings.TrimPrefix(r.URL.Path, ipfsPrefix)
	if remaining == "" {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("path '%s' is missing CID", r.URL.Path))
		return
	}
	// parse root CID
	cidString, subPath, _ := strings.Cut(remaining, "/")
	root, err := cidcodec.Decode(cidString)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("parsing CID '%s': %s", cidString, err.Error()))
		return
	}
	h.serve(w, r, root, subPath)
}

// serve resolves path under root. A trailing slash asks for directory
// semantics: the index document, or a listing.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, root cid.Cid, subPath string) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, r, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", r.Method))
		return
	}
	trailingSlash := strings.HasSuffix(r.URL.Path, "/")
	subPath = strings.Trim(subPath, "/")

	result, err := h.resolver.Resolve(r.Context(), root, subPath, trailingSlash)
	if err != nil {
		h.writeResolveError(w, r, err)
		return
	}

	switch result := result.(type) {
	case *nearfs.DirectoryListing:
		if !trailingSlash {
			location := r.URL.EscapedPath() + "/"
			if r.URL.RawQuery != "" {
				location += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, location, http.StatusMovedPermanently)
			alog("%s\t%s %s -> %s", color.New(color.FgYellow).Sprintf("%d", http.StatusMovedPermanently), r.Method, r.URL, location)
			return
		}
		if h.notModified(w, r, result.Cid()) {
			return
		}
		h.serveListing(w, r, root, subPath, result)
	case *nearfs.FileStream:
		if h.notModified(w, r, result.Cid()) {
			return
		}
		h.serveFile(w, r, subPath, result)
	default:
		writeError(w, r, http.StatusInternalServerError, fmt.Sprintf("unexpected result %T", result))
	}
}

// notModified sets the caching headers shared by every successful response
// and answers conditional requests. The ETag names the resolved CID, so it
// is stable per sub-resource.
func (h *Handler) notModified(w http.ResponseWriter, r *http.Request, resolved cid.Cid) bool {
	etag := `W/"` + cidcodec.Encode(resolved) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", cacheControl)
	if !etagMatches(r.Header.Get("If-None-Match"), etag) {
		return false
	}
	w.WriteHeader(http.StatusNotModified)
	alog("%s\t%s %s", color.New(color.FgGreen).Sprintf("%d", http.StatusNotModified), r.Method, r.URL)
	return true
}

func etagMatches(header string, etag string) bool {
	if header == "" {
		return false
	}
	strong := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || candidate == etag || candidate == strong {
			return true
		}
	}
	return false
}

func (h *Handler) serveListing(w http.ResponseWriter, r *http.Request, root cid.Cid, subPath string, listing *nearfs.DirectoryListing) {
	displayPath := ipfsPrefix + cidcodec.Encode(root) + "/"
	if subPath != "" {
		displayPath += subPath + "/"
	}
	var buf bytes.Buffer
	if err := renderListing(&buf, displayPath, listing); err != nil {
		writeError(w, r, http.StatusInternalServerError, fmt.Sprintf("rendering listing: %s", err))
		return
	}
	w.Header().Set("Content-Type", sniff.HTML)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", buf.Len()))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(buf.Bytes()) //nolint:errcheck
	}
	alog("%s\t%s %s (listing, %d entries)", color.New(color.FgGreen).Sprintf("%d", http.StatusOK), r.Method, r.URL, len(listing.Links()))
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, subPath string, file *nearfs.FileStream) {
	content, err := file.Open(r.Context())
	if err != nil {
		h.writeResolveError(w, r, err)
		return
	}
	defer content.Close()

	// the first chunk is read before the status line goes out, so a missing
	// or broken leading block still gets a proper status
	prefix, body, err := assembler.Peek(content, sniff.SampleSize)
	if err != nil {
		h.writeResolveError(w, r, err)
		return
	}

	// content type: explicit filename, then path extension, then sniffing
	contentType := ""
	if filename := r.URL.Query().Get("filename"); filename != "" {
		contentType = sniff.FromName(filename)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	}
	if contentType == "" {
		contentType = sniff.FromName(path.Base(subPath))
	}
	if contentType == "" {
		contentType = sniff.FromContent(prefix)
	}
	w.Header().Set("Content-Type", contentType)
	if file.HasSize() {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", file.Size))
	}

	start := time.Now()
	alogAt(start, "%s\t%s %s", color.New(color.FgGreen).Sprintf("%d", http.StatusOK), r.Method, r.URL)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}

	// io.Copy does not tell write errors from read errors, so the writer is
	// replaced with one that watches for errors
	var writeErr error
	writeErrWatcher := &writeErrorWatcher{ResponseWriter: w, onError: func(e error) {
		writeErr = e
	}}
	_, err = io.Copy(writeErrWatcher, body)

	// Write a line to the log
	end := time.Now()
	completeMsg := fmt.Sprintf("%s %s\n%s - %s: %s / %s bytes transferred",
		r.Method, r.URL, end.Format(timeFmt), start.Format(timeFmt), time.Since(start), addCommas(writeErrWatcher.count))
	if err == nil {
		alogAt(end, "%s\t%s", color.New(color.FgGreen).Sprint("DONE"), completeMsg)
		return
	}
	alogAt(end, "%s\t%s\n%s",
		color.New(color.FgRed).Sprint("FAIL"), completeMsg, err)
	if writeErr == nil {
		// the status line is gone, so the only signal left for the client is
		// a truncated response
		log.Errorw("stream failed after headers were sent", "url", r.URL.String(), "err", err)
		panic(http.ErrAbortHandler)
	}
}

func (h *Handler) writeResolveError(w http.ResponseWriter, r *http.Request, err error) {
	var errNotFound nearfs.ErrNotFound
	if errors.As(err, &errNotFound) {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	log.Errorw("resolving", "url", r.URL.String(), "err", err)
	writeError(w, r, http.StatusInternalServerError, err.Error())
}
