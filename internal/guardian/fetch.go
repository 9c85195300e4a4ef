package guardian

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	readTimeout    = 10 * time.Second
	connectTimeout = 15 * time.Second
)

var lineBreaks = strings.NewReplacer("\r", "", "\n", "")

// StatusError reports a non-200 response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.Code)
}

// Fetcher performs single-attempt GET requests against the content API.
type Fetcher struct {
	httpClient  *http.Client
	readTimeout time.Duration
	log         *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the default client (for testing).
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.httpClient = c
	}
}

// WithReadTimeout overrides the idle read timeout.
func WithReadTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.readTimeout = d
	}
}

// NewFetcher creates a Fetcher with the connect and read timeouts of the API client.
func NewFetcher(log *slog.Logger, opts ...FetcherOption) *Fetcher {
	dialer := &net.Dialer{Timeout: connectTimeout}
	f := &Fetcher{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				TLSHandshakeTimeout:   connectTimeout,
				ResponseHeaderTimeout: readTimeout,
			},
		},
		readTimeout: readTimeout,
		log:         log,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return f
}

// Fetch returns the response body for u, or an empty string on any failure.
// A nil u returns immediately without a request.
func (f *Fetcher) Fetch(ctx context.Context, u *url.URL) string {
	body, err := f.Get(ctx, u)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			f.log.Error("error response code", slog.Int("status", statusErr.Code))
		} else {
			f.log.Error("retrieve articles json", slog.Any("err", err))
		}
		return ""
	}
	return body
}

// Get is Fetch with the failure reported to the caller.
func (f *Fetcher) Get(ctx context.Context, u *url.URL) (string, error) {
	if u == nil {
		return "", nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch articles: %w", redact(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Code: resp.StatusCode}
	}

	// An idle body aborts the request once readTimeout passes without data.
	timer := time.AfterFunc(f.readTimeout, cancel)
	defer timer.Stop()

	body, err := readLines(&idleReader{r: resp.Body, timer: timer, timeout: f.readTimeout})
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// readLines joins every line of r without separators. \n, \r and \r\n all end a line.
func readLines(r io.Reader) (string, error) {
	var out strings.Builder
	br := bufio.NewReader(r)
	for {
		chunk, err := br.ReadString('\n')
		out.WriteString(lineBreaks.Replace(chunk))
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
	}

	body := out.String()
	if !utf8.ValidString(body) {
		body = strings.ToValidUTF8(body, string(utf8.RuneError))
	}
	return body, nil
}

type idleReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.timeout)
	}
	return n, err
}

// redact drops the query string, which carries the API key, from transport errors.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if u, perr := url.Parse(urlErr.URL); perr == nil {
			u.RawQuery = ""
			return &url.Error{Op: urlErr.Op, URL: u.String(), Err: urlErr.Err}
		}
	}
	return err
}
