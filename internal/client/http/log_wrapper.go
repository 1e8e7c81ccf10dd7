package client

import (
	"bytes"
	"io"
	"mime"
	"net/http"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logTransportWrapper dumps requests and responses when the debug level is enabled.
type logTransportWrapper struct {
	next http.RoundTripper
}

func (l *logTransportWrapper) Wrap(transport http.RoundTripper) http.RoundTripper {
	return &logTransportWrapper{
		next: transport,
	}
}

func (l *logTransportWrapper) RoundTrip(request *http.Request) (response *http.Response, err error) {
	if !zap.L().Core().Enabled(zapcore.DebugLevel) {
		return l.next.RoundTrip(request)
	}

	// Read the complete body in memory, in order to send it to the log, and replace it with a
	// reader that reads it from memory:
	if request.Body != nil {
		var body []byte
		body, err = io.ReadAll(request.Body)
		if err != nil {
			return
		}

		err = request.Body.Close()
		if err != nil {
			return
		}

		l.logRequest(request, body)
		request.Body = io.NopCloser(bytes.NewBuffer(body))
	} else {
		l.logRequest(request, nil)
	}

	response, err = l.next.RoundTrip(request)
	if err != nil {
		return
	}

	if response.Body != nil {
		var body []byte
		body, err = io.ReadAll(io.LimitReader(response.Body, maxDrainBytes))
		if err != nil {
			return
		}

		err = response.Body.Close()
		if err != nil {
			return
		}

		l.logResponse(response, body)
		response.Body = io.NopCloser(bytes.NewBuffer(body))
	} else {
		l.logResponse(response, nil)
	}

	return
}

func (l *logTransportWrapper) logRequest(request *http.Request, body []byte) {
	zap.S().Debugw("heartbeat request", "method", request.Method, "url", request.URL.String())

	header := request.Header
	for k, values := range header {
		for _, value := range values {
			zap.S().Debugw("request header", "key", k, "value", value)
		}
	}

	if body != nil {
		l.logBody("request body", header, body)
	}
}

func (l *logTransportWrapper) logResponse(response *http.Response, body []byte) {
	zap.S().Debugw("heartbeat response", "protocol", response.Proto, "status", response.Status)

	header := response.Header
	for k, values := range header {
		for _, value := range values {
			zap.S().Debugw("response header", "key", k, "value", value)
		}
	}

	if body != nil {
		l.logBody("response body", header, body)
	}
}

func (l *logTransportWrapper) logBody(msg string, header http.Header, body []byte) {
	var mediaType string
	if contentType := header.Get("Content-Type"); contentType != "" {
		var err error
		mediaType, _, err = mime.ParseMediaType(contentType)
		if err != nil {
			zap.S().Debugf("can't parse content type '%s': %v", contentType, err)
		}
	}

	switch mediaType {
	case "application/json", "text/plain", "":
		zap.S().Debugw(msg, "body", string(body))
	default:
		zap.S().Debugw(msg, "media_type", mediaType, "size", len(body))
	}
}
