// Package service implements the core forwarding logic.
package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"imdb-proxy/internal/client"
	"imdb-proxy/internal/config"
	"imdb-proxy/internal/model"
)

// ErrMissingQuery is returned when the q parameter is absent or empty.
var ErrMissingQuery = errors.New(`query parameter "q" is required`)

// ErrResponseTooLarge is wrapped in a *TransportError when the upstream body
// exceeds upstream.max_response_bytes.
var ErrResponseTooLarge = errors.New("upstream response too large")

// allowedUpstreamHosts restricts which hosts the proxy will forward to.
var allowedUpstreamHosts = map[string]bool{
	"v3.sg.media-imdb.com": true,
}

// fallbackLetter is used when the query does not start with a-z.
const fallbackLetter = "a"

// kelvinSign is the only non-ASCII rune whose full lowercase mapping is a
// single ASCII letter.
const kelvinSign = '\u212A'

// impersonationHeaders is the fixed header set sent upstream, copied from a
// desktop Chrome request. Values must stay byte-identical.
var impersonationHeaders = []struct{ Key, Value string }{
	{"User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"},
	{"Accept", "application/json, text/plain, */*"},
	{"Accept-Language", "en-US,en;q=0.9"},
	{"Referer", "https://www.imdb.com/"},
	{"Origin", "https://www.imdb.com"},
	{"Sec-Ch-Ua", `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`},
	{"Sec-Ch-Ua-Mobile", "?0"},
	{"Sec-Ch-Ua-Platform", `"Windows"`},
	{"Sec-Fetch-Dest", "empty"},
	{"Sec-Fetch-Mode", "cors"},
	{"Sec-Fetch-Site", "cross-site"},
}

// UpstreamStatusError reports a non-2xx upstream response.
type UpstreamStatusError struct {
	StatusCode int
	StatusText string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("IMDb responded with %d: %s", e.StatusCode, e.StatusText)
}

// ParseError reports an upstream body that is not valid JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "invalid JSON from IMDb: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// TransportError reports a failure to reach the upstream or read its body,
// including cancellation of the inbound request.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// SuggestionService forwards title-suggestion queries to IMDb.
type SuggestionService struct {
	client  *client.IMDbClient
	cfg     *config.Config
	logger  *slog.Logger
	baseURL string
}

// NewSuggestionService creates a SuggestionService.
func NewSuggestionService(c *client.IMDbClient, cfg *config.Config, logger *slog.Logger) (*SuggestionService, error) {
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}

	if !allowedUpstreamHosts[u.Hostname()] {
		return nil, fmt.Errorf("upstream host %q is not in the allowlist", u.Hostname())
	}

	return newSuggestionService(c, cfg, logger), nil
}

// NewSuggestionServiceForTest creates a SuggestionService without host allowlist validation.
// This is intended only for tests that use httptest servers on localhost.
func NewSuggestionServiceForTest(c *client.IMDbClient, cfg *config.Config, logger *slog.Logger) (*SuggestionService, error) {
	if _, err := url.Parse(cfg.Upstream.BaseURL); err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}
	return newSuggestionService(c, cfg, logger), nil
}

func newSuggestionService(c *client.IMDbClient, cfg *config.Config, logger *slog.Logger) *SuggestionService {
	return &SuggestionService{
		client:  c,
		cfg:     cfg,
		logger:  logger.With("component", "suggestion_service"),
		baseURL: strings.TrimRight(cfg.Upstream.BaseURL, "/"),
	}
}

// Forward validates the query, issues exactly one upstream request and
// returns the upstream JSON in compact form.
//
// Errors are ErrMissingQuery, *UpstreamStatusError, *ParseError or
// *TransportError.
func (s *SuggestionService) Forward(in *model.InboundRequest) (json.RawMessage, error) {
	q := in.Query.Get("q")
	if q == "" {
		return nil, ErrMissingQuery
	}

	target := s.BuildTarget(q)

	s.logger.Debug("forwarding query",
		"letter", target.Letter,
		"url", target.URL,
	)

	resp, err := s.client.Get(in.Ctx, target.URL, upstreamHeader())
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamStatusError{
			StatusCode: resp.StatusCode,
			StatusText: statusText(resp.StatusCode, resp.Status),
		}
	}

	return s.readJSON(resp.Body)
}

// BuildTarget derives the upstream URL for q.
func (s *SuggestionService) BuildTarget(q string) model.Target {
	letter := PartitionLetter(q)
	encoded := EscapeComponent(q)
	return model.Target{
		Letter:       letter,
		EncodedQuery: encoded,
		URL:          s.baseURL + "/suggestion/titles/" + letter + "/" + encoded + ".json",
	}
}

func (s *SuggestionService) readJSON(body io.Reader) (json.RawMessage, error) {
	limit := s.cfg.Upstream.MaxResponseBytes
	if limit > 0 {
		body = io.LimitReader(body, limit+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("read upstream body: %w", err)}
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, &TransportError{Err: fmt.Errorf("%w: exceeds %d bytes", ErrResponseTooLarge, limit)}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, &ParseError{Err: err}
	}
	return buf.Bytes(), nil
}

// PartitionLetter returns the lowercase first character of q when it
// lowercases to exactly one ASCII letter, and "a" otherwise. Runes whose full
// lowercase form is longer, such as U+0130, fall back to "a".
func PartitionLetter(q string) string {
	r, _ := utf8.DecodeRuneInString(q)
	switch {
	case r >= 'a' && r <= 'z':
		return string(r)
	case r >= 'A' && r <= 'Z':
		return string(r + ('a' - 'A'))
	case r == kelvinSign:
		return "k"
	}
	return fallbackLetter
}

// EscapeComponent percent-encodes s for use as a single path segment. Only
// ALPHA, DIGIT and -_.!~*'() pass through; every other byte becomes %XX.
// Each invalid UTF-8 byte is first replaced with U+FFFD.
func EscapeComponent(s string) string {
	const hex = "0123456789ABCDEF"

	s = replaceInvalidUTF8(s)

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreservedComponent(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func replaceInvalidUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	for _, r := range s {
		b.WriteRune(r)
	}
	return b.String()
}

func unreservedComponent(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}

// upstreamHeader returns a fresh copy of the impersonation header set.
func upstreamHeader() http.Header {
	h := make(http.Header, len(impersonationHeaders))
	for _, kv := range impersonationHeaders {
		h.Set(kv.Key, kv.Value)
	}
	return h
}

// statusText extracts the reason phrase from a status line such as
// "503 Service Unavailable", falling back to the standard text.
func statusText(code int, status string) string {
	if text, ok := strings.CutPrefix(status, strconv.Itoa(code)+" "); ok && text != "" {
		return text
	}
	return http.StatusText(code)
}
