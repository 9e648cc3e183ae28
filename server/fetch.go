package regler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	webTimeout = 10 * time.Second
)

var ErrFetchStatus = errors.New("unexpected response status")

type HTTPClient interface {
	Get(string) (*http.Response, error)
}

// Shared HTTP Client
var sharedHTTPClient = &http.Client{
	Timeout: webTimeout,
	Transport: &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	},
}

// SingleFetchWithClient handles the messy business of the HTTP connection
// and is testable with dependency injection, called by SingleFetch
func SingleFetchWithClient(url string, c HTTPClient) (int, []byte, error) {
	resp, err := c.Get(url)
	if err != nil {
		slog.Error("Fetch Error", slog.Any("Error", err))
		return 0, nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("Close Error", slog.Any("Error", err))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Error("Could not read body", slog.Any("Error", err))
		return 0, nil, err
	}

	return resp.StatusCode, body, nil
}

// SingleFetch returns the Response Code, raw byte stream body, and error
// This uses a Shared HTTP Client:
// - to reuse existing endpoint connections
// - to avoid stale connections that eat up OS FDs
func SingleFetch(url string) (int, []byte, error) {
	return SingleFetchWithClient(url, sharedHTTPClient)
}

// LoadSource reads a trend export or parameter CSV,
// over HTTP when src is a URL, from disk otherwise
func LoadSource(src string) ([]byte, error) {
	return LoadSourceWithClient(src, sharedHTTPClient)
}

func LoadSourceWithClient(src string, c HTTPClient) ([]byte, error) {
	if !isURL(src) {
		body, err := os.ReadFile(src)
		if err != nil {
			slog.Error("Could not read source", slog.String("path", src), slog.Any("Error", err))
			return nil, fmt.Errorf("reading %s: %w", src, err)
		}
		return body, nil
	}

	code, body, err := SingleFetchWithClient(src, c)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", src, err)
	}
	if code < 200 || code > 299 {
		slog.Error("Source answered with error", slog.String("URL", src), slog.Int("status", code))
		return nil, fmt.Errorf("fetching %s: %w %d", src, ErrFetchStatus, code)
	}
	return body, nil
}

func isURL(src string) bool {
	lower := strings.ToLower(src)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
