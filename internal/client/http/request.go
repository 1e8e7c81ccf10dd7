package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

type RequestBuilder struct {
	method string
	body   []byte
	url    string
	header map[string]string
}

func newRequestBuilder() *RequestBuilder {
	return &RequestBuilder{
		method: http.MethodGet,
		header: make(map[string]string),
	}
}

func (rb *RequestBuilder) Method(method string) *RequestBuilder {
	rb.method = method
	return rb
}

func (rb *RequestBuilder) Url(url string) *RequestBuilder {
	rb.url = url
	return rb
}

func (rb *RequestBuilder) Body(b []byte) *RequestBuilder {
	rb.body = b
	return rb
}

func (rb *RequestBuilder) Header(key, value string) *RequestBuilder {
	rb.header[key] = value
	return rb
}

func (rb *RequestBuilder) Build(ctx context.Context) (*http.Request, error) {
	if rb.url == "" {
		return nil, errors.New("url is required")
	}

	u, err := url.Parse(rb.url)
	if err != nil {
		return nil, fmt.Errorf("server address error: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme '%s'", u.Scheme)
	}

	var body io.Reader
	if rb.body != nil {
		body = bytes.NewReader(rb.body)
	}

	request, err := http.NewRequestWithContext(ctx, rb.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("cannot create request '%w'", err)
	}

	for k, v := range rb.header {
		request.Header.Set(k, v)
	}

	return request, nil
}
