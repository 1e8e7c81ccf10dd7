package reporter

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"time"

	"github.com/tupyy/stream-heartbeat/internal/entity"
	"go.uber.org/zap"
)

const defaultTimeout = 5 * time.Second

//go:generate mockgen -package=reporter -destination=mock_transport.go --build_flags=--mod=mod . Transport
type Transport interface {
	// Post sends body to url and returns the status code of the response.
	// An error means that no response has been obtained.
	Post(ctx context.Context, url string, body []byte) (int, error)
}

// Collector builds the heartbeat payload.
type Collector interface {
	Collect(ctx context.Context, conf entity.ReporterConfig) (entity.Heartbeat, error)
}

// Reporter sends the heartbeat of this server to the api server.
// It holds no state between reports and can be called concurrently.
type Reporter struct {
	config    entity.ReporterConfig
	transport Transport
	collector Collector
}

func New(config entity.ReporterConfig, transport Transport, collector Collector) *Reporter {
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	return &Reporter{
		config:    config,
		transport: transport,
		collector: collector,
	}
}

// Heartbeat sends one report if reporting is enabled.
// Failures are logged and never returned.
func (r *Reporter) Heartbeat(ctx context.Context) {
	if !r.config.Enabled {
		return
	}

	outcome := r.doHeartbeat(ctx)
	if outcome.IsSuccess() {
		return
	}

	fields := []interface{}{
		"kind", outcome.Kind.String(),
		"detail", outcome.Detail,
		"endpoint", r.config.Endpoint,
		"device_id", r.config.DeviceID,
	}

	if outcome.Kind == entity.BadStatus {
		fields = append(fields, "code", outcome.Code)
	}

	if outcome.Kind == entity.Canceled {
		zap.S().Infow("heartbeat aborted", fields...)
		return
	}

	zap.S().Warnw("heartbeat failed", fields...)
}

func (r *Reporter) doHeartbeat(ctx context.Context) entity.Outcome {
	heartbeat, err := r.collector.Collect(ctx, r.config)
	if err != nil {
		if ctx.Err() != nil {
			return classify(ctx, err)
		}
		return entity.Failure(entity.SerializationError, err.Error())
	}

	body, err := json.Marshal(heartbeat)
	if err != nil {
		return entity.Failure(entity.SerializationError, err.Error())
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	code, err := r.transport.Post(reqCtx, r.config.Endpoint, body)
	if err != nil {
		return classify(ctx, err)
	}

	if code < 200 || code > 299 {
		return entity.BadStatusFailure(code)
	}

	zap.S().Debugw("heartbeat sent", "endpoint", r.config.Endpoint, "code", code)

	return entity.Success()
}

// classify maps an error obtained before any response to a failure kind.
// ctx is the context of the caller: its cancellation is not a timeout of the request.
func classify(ctx context.Context, err error) entity.Outcome {
	if errors.Is(ctx.Err(), context.Canceled) {
		return entity.Failure(entity.Canceled, err.Error())
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return entity.Failure(entity.Timeout, err.Error())
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return entity.Failure(entity.Timeout, err.Error())
	}

	return entity.Failure(entity.ConnectionError, err.Error())
}
