// Package reconcile periodically turns changed conversation segments into
// persisted leads.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/tensai/internal/conversation"
	"github.com/ent0n29/tensai/internal/lead"
	"github.com/ent0n29/tensai/internal/observability"
	"github.com/ent0n29/tensai/internal/policy"
)

const DefaultInterval = 10 * time.Second

// Segments is the read side of the conversation buffer.
type Segments interface {
	List(ctx context.Context) ([]conversation.Info, error)
	Read(ctx context.Context, id string) (conversation.Segment, error)
}

type Extractor interface {
	Extract(ctx context.Context, turns []conversation.Turn) lead.Record
}

// ScanResult summarizes one pass over the segments.
type ScanResult struct {
	Listed     int
	Processed  int
	Persisted  int
	Incomplete int
	Failed     int
	Skipped    int
}

type Option func(*Reconciler)

func WithInterval(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithTrigger makes Run scan early whenever a value arrives on ch.
func WithTrigger(ch <-chan string) Option {
	return func(r *Reconciler) { r.trigger = ch }
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Reconciler) { r.logger = observability.OrNop(logger) }
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(r *Reconciler) { r.metrics = metrics }
}

// Reconciler holds a process-local watermark of the last processed
// modification instant per segment. The watermark is never persisted; after a
// restart every segment is extracted once more.
type Reconciler struct {
	segments  Segments
	extractor Extractor
	leads     lead.Store
	interval  time.Duration
	trigger   <-chan string
	logger    *zap.Logger
	metrics   *observability.Metrics

	scanMu    sync.Mutex
	mu        sync.Mutex
	watermark map[string]time.Time
}

func New(segments Segments, extractor Extractor, leads lead.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		segments:  segments,
		extractor: extractor,
		leads:     leads,
		interval:  DefaultInterval,
		logger:    zap.NewNop(),
		watermark: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run scans immediately, then every interval and on each trigger, until ctx
// is done.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", zap.Duration("interval", r.interval))
	r.Scan(ctx)
	trigger := r.trigger
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return nil
		case <-ticker.C:
			r.Scan(ctx)
		case _, ok := <-trigger:
			if !ok {
				trigger = nil
				continue
			}
			r.Scan(ctx)
		}
	}
}

// Scan processes every segment whose modification instant is newer than its
// watermark entry. Failures are contained per segment.
func (r *Reconciler) Scan(ctx context.Context) ScanResult {
	r.scanMu.Lock()
	defer r.scanMu.Unlock()

	var res ScanResult
	infos, err := r.segments.List(ctx)
	if err != nil {
		r.logger.Warn("list segments failed", zap.Error(err))
		r.metrics.ObserveReconcileSegment("list_failed")
		return res
	}
	res.Listed = len(infos)

	for _, info := range infos {
		if ctx.Err() != nil {
			break
		}
		if !r.changed(info) {
			res.Skipped++
			continue
		}
		res.Processed++
		outcome, err := r.processSegment(ctx, info)
		if err != nil {
			res.Failed++
			r.metrics.ObserveReconcileSegment("failed")
			r.logger.Warn("segment reconcile failed", zap.String("segment", info.ID), zap.Error(err))
			continue
		}
		switch outcome {
		case outcomePersisted:
			res.Persisted++
		case outcomeIncomplete:
			res.Incomplete++
		}
		r.metrics.ObserveReconcileSegment(string(outcome))
		r.advance(info)
	}
	r.metrics.ObserveReconcileScan()
	if res.Processed > 0 {
		r.logger.Info("reconcile scan complete",
			zap.Int("listed", res.Listed),
			zap.Int("processed", res.Processed),
			zap.Int("persisted", res.Persisted),
			zap.Int("incomplete", res.Incomplete),
			zap.Int("failed", res.Failed),
		)
	}
	return res
}

type outcome string

const (
	outcomePersisted  outcome = "persisted"
	outcomeIncomplete outcome = "incomplete"
)

func (r *Reconciler) processSegment(ctx context.Context, info conversation.Info) (out outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while processing segment: %v", p)
		}
	}()

	seg, err := r.segments.Read(ctx, info.ID)
	if err != nil {
		return "", fmt.Errorf("read segment: %w", err)
	}
	rec := r.extractor.Extract(ctx, seg.Turns)
	if !rec.Complete() {
		r.logger.Debug("lead details not complete", zap.String("segment", info.ID))
		return outcomeIncomplete, nil
	}
	if err := r.leads.Put(ctx, info.ID, rec); err != nil {
		return "", fmt.Errorf("persist lead: %w", err)
	}
	r.logger.Info("lead saved",
		zap.String("segment", info.ID),
		zap.String("phone", policy.MaskPhone(rec.Phone)),
		zap.String("email", policy.MaskEmail(rec.Email)),
	)
	return outcomePersisted, nil
}

func (r *Reconciler) changed(info conversation.Info) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.watermark[info.ID]
	return !ok || info.ModifiedAt.After(last)
}

func (r *Reconciler) advance(info conversation.Info) {
	r.mu.Lock()
	r.watermark[info.ID] = info.ModifiedAt
	r.mu.Unlock()
}

// Watermark returns the recorded instant for a segment.
func (r *Reconciler) Watermark(id string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.watermark[id]
	return t, ok
}
