package httpclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultMaxBody   = 2 << 20 // 2 MiB
	defaultRedirects = 10
)

// Client issues GET requests for feeds, pages and aggregator redirects.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (*Response, error)
}

// ErrBodyTooLarge is returned when a response body exceeds MaxBodyBytes.
// The body is not read past the limit.
var ErrBodyTooLarge = errors.New("response body exceeds limit")

// Response is a fully read HTTP response.
type Response struct {
	status   int
	body     []byte
	finalURL string
}

// NewResponse builds a Response; used by alternative Client implementations.
func NewResponse(status int, body []byte, finalURL string) *Response {
	return &Response{status: status, body: body, finalURL: finalURL}
}

func (r *Response) StatusCode() int { return r.status }
func (r *Response) Body() []byte    { return r.body }

// FinalURL is the URL of the last request in the redirect chain.
func (r *Response) FinalURL() string { return r.finalURL }

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool { return r.status >= 200 && r.status < 300 }

// Options tunes the resty client.
type Options struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int
	MaxRedirects int
}

type restyClient struct {
	rc *resty.Client
}

// NewRestyClient returns a resty-backed Client with the given timeout and defaults.
func NewRestyClient(timeout time.Duration) Client {
	return New(Options{Timeout: timeout})
}

// New returns a resty-backed Client.
func New(opts Options) Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 12 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBody
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = defaultRedirects
	}

	rc := resty.New().
		SetTimeout(opts.Timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(opts.MaxRedirects)).
		SetResponseBodyLimit(opts.MaxBodyBytes).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept-Language", "en-US,en;q=0.9")

	return &restyClient{rc: rc}
}

// Get performs a GET and reads the whole body. A body over the configured
// limit fails with ErrBodyTooLarge.
func (c *restyClient) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeaders(headers).
		Get(url)
	if errors.Is(err, resty.ErrResponseBodyTooLarge) {
		return nil, fmt.Errorf("get %s: %w", url, ErrBodyTooLarge)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	if resp == nil || resp.RawResponse == nil {
		return nil, errors.New("empty response")
	}

	out := &Response{
		status:   resp.StatusCode(),
		body:     resp.Body(),
		finalURL: url,
	}
	if req := resp.RawResponse.Request; req != nil && req.URL != nil {
		out.finalURL = req.URL.String()
	}
	return out, nil
}
