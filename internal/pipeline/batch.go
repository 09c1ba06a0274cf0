package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/txscreen/internal/metrics"
	"github.com/sells-group/txscreen/internal/model"
)

// batcher holds results for one sink and flushes them when full.
type batcher struct {
	name    string
	sink    Sink
	size    int
	buf     []model.Result
	metrics *metrics.Metrics
	audit   Auditor
	flushes int
}

func newBatcher(name string, sink Sink, size int, m *metrics.Metrics, audit Auditor) *batcher {
	return &batcher{
		name:    name,
		sink:    sink,
		size:    size,
		buf:     make([]model.Result, 0, size),
		metrics: m,
		audit:   audit,
	}
}

func (b *batcher) add(ctx context.Context, r model.Result) error {
	b.buf = append(b.buf, r)
	if len(b.buf) < b.size {
		return nil
	}
	return b.flush(ctx)
}

// flush writes the held results, then hands their detections to the
// auditor. The buffer is replaced, not reused, so a sink may keep the slice.
func (b *batcher) flush(ctx context.Context) error {
	if len(b.buf) == 0 {
		return nil
	}
	start := time.Now()
	if err := b.sink.WriteBatch(ctx, b.buf); err != nil {
		if model.KindOf(err) == "" {
			err = model.NewError(model.KindSinkWrite, "write "+b.name+" batch", err)
		}
		return err
	}
	b.flushes++
	if b.metrics != nil {
		b.metrics.ObserveFlush(b.name, len(b.buf), time.Since(start))
	}

	if b.audit != nil {
		var detections []model.Detection
		for _, r := range b.buf {
			detections = append(detections, r.Detections...)
		}
		if err := b.audit.Record(ctx, detections); err != nil {
			return eris.Wrapf(err, "pipeline: audit %s batch", b.name)
		}
	}

	b.buf = make([]model.Result, 0, b.size)
	return nil
}
