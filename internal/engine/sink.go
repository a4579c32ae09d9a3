package engine

import (
	"log/slog"
	"sync"

	"github.com/askweb/askweb/internal/observability"
	"github.com/askweb/askweb/pkg/api"
)

// Streamer delivers protocol frames to a client as they are produced. The
// SSE transport implements it; a nil Streamer aggregates instead.
type Streamer interface {
	Send(msg api.Message) error
}

// sink is the single exit point for frames. It serializes writes, attaches
// the query_id, drops frames once the connection died, and in
// non-streaming mode folds frames into one aggregate response object.
type sink struct {
	streamer  Streamer
	queryID   string
	streaming bool
	alive     *Latch
	log       *slog.Logger
	metrics   *observability.Metrics

	mu        sync.Mutex
	aggregate api.Message
}

func newSink(streamer Streamer, queryID string, streaming bool, alive *Latch, log *slog.Logger, metrics *observability.Metrics) *sink {
	return &sink{
		streamer:  streamer,
		queryID:   queryID,
		streaming: streaming && streamer != nil,
		alive:     alive,
		log:       log,
		metrics:   metrics,
		aggregate: api.Message{},
	}
}

func (k *sink) send(msg api.Message) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.alive.IsSet() {
		k.log.Debug("connection lost, dropping message", "message_type", msg.Type())
		if k.metrics != nil {
			k.metrics.StreamSendFailures.Inc()
		}
		return
	}

	if k.streaming {
		msg["query_id"] = k.queryID
		if err := k.streamer.Send(msg); err != nil {
			k.log.Warn("stream write failed, marking connection dead", "error", err)
			k.alive.Clear()
			if k.metrics != nil {
				k.metrics.StreamSendFailures.Inc()
			}
			return
		}
	} else {
		k.aggregateLocked(msg)
	}

	if k.metrics != nil {
		k.metrics.MessagesSent.WithLabelValues(msg.Type()).Inc()
	}
}

// aggregateLocked folds msg into the single-response object: result_batch
// frames append their results flat under "results"; any other type is
// stored (minus its tag) under the type key, last write winning.
func (k *sink) aggregateLocked(msg api.Message) {
	if msg.Type() == api.TypeResultBatch {
		results, _ := k.aggregate["results"].([]any)
		switch batch := msg["results"].(type) {
		case []any:
			results = append(results, batch...)
		case []api.Result:
			for _, r := range batch {
				results = append(results, r)
			}
		}
		k.aggregate["results"] = results
		return
	}

	val := make(map[string]any, len(msg))
	for key, v := range msg {
		if key != "message_type" {
			val[key] = v
		}
	}
	k.aggregate[msg.Type()] = val
}

// result returns the aggregated response with the query_id attached.
func (k *sink) result() api.Message {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.aggregate["query_id"] = k.queryID
	return k.aggregate
}
