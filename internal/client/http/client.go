package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/tupyy/stream-heartbeat/internal/certificate"
)

const (
	defaultTimeout   = 5 * time.Second
	defaultUserAgent = "stream-heartbeat"

	// maxDrainBytes is the amount of response body read before closing it
	// so that the connection can be reused.
	maxDrainBytes = 64 << 10
)

// transportWrapper is a wrapper for transport. It can be used as a middleware.
type transportWrapper func(http.RoundTripper) http.RoundTripper

type Option func(c *Client)

// WithTimeout bounds each request, including reading the response.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithTLS sets the certificates used for https endpoints.
func WithTLS(certManager *certificate.Manager) Option {
	return func(c *Client) {
		c.certManager = certManager
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// Client posts heartbeats to the api server.
// It is safe for concurrent use: the underlying transport is built once and shared.
type Client struct {
	timeout     time.Duration
	userAgent   string
	certManager *certificate.Manager

	transportWrappers []transportWrapper

	client *http.Client
}

func New(opts ...Option) (*Client, error) {
	c := &Client{
		timeout:   defaultTimeout,
		userAgent: defaultUserAgent,
	}

	for _, opt := range opts {
		opt(c)
	}

	logWrapper := &logTransportWrapper{}
	c.transportWrappers = []transportWrapper{logWrapper.Wrap}

	transport, err := c.createTransport()
	if err != nil {
		return nil, err
	}

	c.client = &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
		// a redirect is returned as is and counts as an unexpected status
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return c, nil
}

// Post sends body to url and returns the status code of the response.
// An error is returned only if no response has been obtained.
func (c *Client) Post(ctx context.Context, url string, body []byte) (int, error) {
	request, err := newRequestBuilder().
		Method(http.MethodPost).
		Url(url).
		Body(body).
		Header("Content-Type", "application/json").
		Header("User-Agent", c.userAgent).
		Build(ctx)
	if err != nil {
		return 0, fmt.Errorf("cannot create heartbeat request '%w'", err)
	}

	response, err := c.client.Do(request)
	if err != nil {
		return 0, fmt.Errorf("cannot send heartbeat '%w'", err)
	}
	defer response.Body.Close()

	// the content of the response is not used
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxDrainBytes))

	return response.StatusCode, nil
}

func (c *Client) createTransport() (http.RoundTripper, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   c.timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   c.timeout,
		ResponseHeaderTimeout: c.timeout,
		MaxIdleConns:          2,
		IdleConnTimeout:       90 * time.Second,
	}

	if c.certManager != nil {
		tlsConfig, err := c.certManager.TLSConfig()
		if err != nil {
			return nil, fmt.Errorf("cannot create tls config: %w", err)
		}

		transport.TLSClientConfig = tlsConfig
	}

	var result http.RoundTripper = transport

	// call the other wrappers backwards
	for i := len(c.transportWrappers) - 1; i >= 0; i-- {
		result = c.transportWrappers[i](result)
	}

	return result, nil
}
