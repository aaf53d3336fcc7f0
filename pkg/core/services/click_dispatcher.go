package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/ns-shortener/pkg/logging"
	"github.com/wadjakorntonsri/ns-shortener/pkg/metrics"
	"github.com/wadjakorntonsri/ns-shortener/pkg/ports"
)

type DispatcherConfig struct {
	QueueSize     int
	Workers       int
	AppendTimeout time.Duration
	DrainTimeout  time.Duration
}

// ClickDispatcher records clicks off the redirect path. Jobs go through a
// bounded queue; when it is full the job is dropped. It runs as a suture
// service: Serve blocks until ctx is done, then drains what it can.
type ClickDispatcher struct {
	queue  chan ports.ClickJob
	geo    ports.GeoResolver
	ledger ports.ClickLedger
	cache  ports.URLCache
	cfg    DispatcherConfig
}

func NewClickDispatcher(geo ports.GeoResolver, ledger ports.ClickLedger, cache ports.URLCache, cfg DispatcherConfig) *ClickDispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.AppendTimeout <= 0 {
		cfg.AppendTimeout = 2 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	return &ClickDispatcher{
		queue:  make(chan ports.ClickJob, cfg.QueueSize),
		geo:    geo,
		ledger: ledger,
		cache:  cache,
		cfg:    cfg,
	}
}

// Dispatch enqueues job without blocking.
func (d *ClickDispatcher) Dispatch(job ports.ClickJob) bool {
	select {
	case d.queue <- job:
		metrics.ClickJobs.WithLabelValues("enqueued").Inc()
		metrics.ClickQueueDepth.Inc()
		return true
	default:
		metrics.ClickJobs.WithLabelValues("dropped").Inc()
		return false
	}
}

func (d *ClickDispatcher) Serve(ctx context.Context) error {
	logging.Info().Int("workers", d.cfg.Workers).Int("queue_size", d.cfg.QueueSize).Msg("click dispatcher started")

	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx)
		}()
	}
	wg.Wait()

	d.drain()
	return ctx.Err()
}

func (d *ClickDispatcher) String() string { return "click-dispatcher" }

func (d *ClickDispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-d.queue:
			metrics.ClickQueueDepth.Dec()
			d.process(ctx, job)
		}
	}
}

// drain processes queued jobs until the queue is empty or the drain
// deadline passes. Whatever is left after the deadline is dropped.
func (d *ClickDispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.DrainTimeout)
	defer cancel()

	processed := 0
	for {
		select {
		case <-ctx.Done():
			left := len(d.queue)
			metrics.ClickJobs.WithLabelValues("dropped").Add(float64(left))
			logging.Warn().Int("processed", processed).Int("dropped", left).Msg("click drain deadline reached")
			return
		case job := <-d.queue:
			metrics.ClickQueueDepth.Dec()
			d.process(ctx, job)
			processed++
		default:
			if processed > 0 {
				logging.Info().Int("processed", processed).Msg("click queue drained")
			}
			return
		}
	}
}

func (d *ClickDispatcher) process(ctx context.Context, job ports.ClickJob) {
	meta := job.Meta
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}
	ua := meta.UserAgent
	if ua == "" {
		ua = domain.LocationUnknown
	}

	loc := d.geo.Resolve(ctx, meta.IP)
	ts := meta.Timestamp.UTC()
	event := &domain.ClickEvent{
		EventID:     uuid.NewString(),
		NamespaceID: job.NamespaceID,
		Shortcode:   job.Shortcode,
		ClickDate:   ts.Format(domain.DateLayout),
		Timestamp:   ts,
		IPAddress:   meta.IP,
		UserAgent:   ua,
		Referer:     meta.Referer,
		Country:     loc.Country,
		City:        loc.City,
	}

	actx, cancel := context.WithTimeout(ctx, d.cfg.AppendTimeout)
	err := d.ledger.Append(actx, event)
	cancel()
	if err != nil {
		metrics.ClickJobs.WithLabelValues("failed").Inc()
		logging.Warn().Err(err).Str("namespace_id", job.NamespaceID).Str("shortcode", job.Shortcode).Msg("failed to append click event")
	} else {
		metrics.ClickJobs.WithLabelValues("recorded").Inc()
	}

	d.cache.TrackHot(ctx, job.NamespaceID, job.Shortcode)
}
