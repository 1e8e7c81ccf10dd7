package reporter

import (
	"context"

	"github.com/tupyy/stream-heartbeat/internal/entity"
)

func (r *Reporter) DoHeartbeat(ctx context.Context) entity.Outcome {
	return r.doHeartbeat(ctx)
}
