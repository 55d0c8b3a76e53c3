package decoder

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/glebovdev/audiostream/internal/audio"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// source is a connected media location.
type source struct {
	body        io.ReadCloser
	header      http.Header
	contentType string
	ext         string
	local       bool
}

func isRemote(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func newStreamClient(userAgent string) *resty.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		DisableCompression:    true,
	}

	// No overall timeout: streams are long-lived.
	return resty.New().
		SetTransport(transport).
		SetHeader("User-Agent", userAgent)
}

func connect(ctx context.Context, client *resty.Client, location string) (*source, error) {
	if !isRemote(location) {
		if len(location) >= 7 && strings.EqualFold(location[:7], "file://") {
			location = location[7:]
		}

		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", audio.ErrNetURL, err)
		}
		return &source{
			body:  f,
			ext:   strings.ToLower(path.Ext(location)),
			local: true,
		}, nil
	}

	log.Debug().Msgf("Connecting to stream: %s", location)

	resp, err := client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Icy-MetaData", "1").
		Get(location)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", audio.ErrNetURL, err)
	}

	body := resp.RawBody()
	log.Debug().Msgf("Stream response status: %d, Content-Type: %s", resp.StatusCode(), resp.Header().Get("Content-Type"))

	if resp.StatusCode() != http.StatusOK {
		if body != nil {
			body.Close()
		}
		return nil, &audio.StatusError{StatusCode: resp.StatusCode(), Status: resp.Status()}
	}

	ext := ""
	if raw := resp.RawResponse; raw != nil && raw.Request != nil {
		// Final URL after redirects.
		ext = strings.ToLower(path.Ext(raw.Request.URL.Path))
	}

	return &source{
		body:        body,
		header:      resp.Header(),
		contentType: strings.ToLower(resp.Header().Get("Content-Type")),
		ext:         ext,
	}, nil
}

// contextReader bounds every read by a timeout and the stream context.
// The spawned read goroutine is released when the body is closed.
type contextReader struct {
	reader  io.Reader
	ctx     context.Context
	timeout time.Duration
}

func (cr *contextReader) Read(p []byte) (n int, err error) {
	select {
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	default:
	}

	timer := time.NewTimer(cr.timeout)
	defer timer.Stop()

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)

	go func() {
		n, err := cr.reader.Read(p)
		done <- result{n, err}
	}()

	select {
	case res := <-done:
		return res.n, res.err
	case <-timer.C:
		return 0, fmt.Errorf("read timeout: no data received for %v", cr.timeout)
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	}
}

// busyReader raises busy while a read on the underlying source is in flight.
type busyReader struct {
	reader io.Reader
	busy   *atomic.Bool
}

func (b *busyReader) Read(p []byte) (int, error) {
	b.busy.Store(true)
	n, err := b.reader.Read(p)
	b.busy.Store(false)
	return n, err
}
