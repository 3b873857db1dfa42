package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/khaledhikmat/vs-belt/model"
	"github.com/khaledhikmat/vs-belt/service/config"
	"github.com/khaledhikmat/vs-belt/service/lgr"
	"github.com/khaledhikmat/vs-belt/service/webhook"
)

// Publisher delivers outcomes to the notification webhook from a fixed
// pool of workers. Publish never waits on the network: a full queue drops
// the outcome. Failed posts are logged and reported, never retried.
type Publisher struct {
	ctx         context.Context
	cfgSvc      config.IService
	webhookSvc  webhook.IService
	broadcaster Broadcaster
	errorStream chan interface{}
	statsStream chan interface{}

	in        chan model.PipelineOutcome
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	startTime time.Time

	published atomic.Int64
	dropped   atomic.Int64
	errors    atomic.Int64
}

// NewPublisher starts the workers. broadcaster may be nil.
func NewPublisher(ctx context.Context,
	cfgSvc config.IService,
	webhookSvc webhook.IService,
	broadcaster Broadcaster,
	errorStream chan interface{},
	statsStream chan interface{}) *Publisher {
	p := &Publisher{
		ctx:         ctx,
		cfgSvc:      cfgSvc,
		webhookSvc:  webhookSvc,
		broadcaster: broadcaster,
		errorStream: errorStream,
		statsStream: statsStream,
		in:          make(chan model.PipelineOutcome, cfgSvc.GetPublisherQueueSize()),
		startTime:   time.Now(),
	}

	for i := 0; i < cfgSvc.GetPublisherWorkers(); i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	return p
}

func (p *Publisher) Publish(outcome model.PipelineOutcome) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.dropped.Add(1)
		lgr.Logger.Warn("publisher closed, outcome dropped", slog.Any("outcome", outcome))
		return
	}

	if p.broadcaster != nil {
		if err := p.broadcaster.Broadcast(outcome); err != nil {
			lgr.Logger.Debug("live broadcast skipped", lgr.Err(err))
		}
	}

	select {
	case p.in <- outcome:
	default:
		p.dropped.Add(1)
		lgr.Logger.Warn(
			"publisher queue full, outcome dropped",
			slog.Int("queue", cap(p.in)),
			slog.Any("outcome", outcome),
		)
	}
}

// Close stops intake and waits for queued and in-flight posts.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.in)
	p.mu.Unlock()

	p.wg.Wait()
	report(p.statsStream, p.Stats())
}

func (p *Publisher) Stats() model.PublisherStats {
	return model.PublisherStats{
		Name:      "webhookPublisher",
		Workers:   p.cfgSvc.GetPublisherWorkers(),
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
		Errors:    p.errors.Load(),
		Uptime:    int64(time.Since(p.startTime).Seconds()),
	}
}

func (p *Publisher) work(worker int) {
	defer p.wg.Done()

	for outcome := range p.in {
		if p.ctx.Err() != nil {
			p.dropped.Add(1)
			continue
		}
		p.post(worker, outcome)
	}
}

func (p *Publisher) post(worker int, outcome model.PipelineOutcome) {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfgSvc.GetPublishTimeout())
	defer cancel()

	if err := p.webhookSvc.Post(ctx, outcome); err != nil {
		p.errors.Add(1)
		lgr.Logger.Error(
			"failed to publish outcome",
			slog.Int("worker", worker),
			slog.Any("outcome", outcome),
			lgr.Err(err),
		)
		report(p.errorStream, model.GenError("publisher",
			err,
			map[string]interface{}{"primaryLabel": outcome.PrimaryLabel},
			"outcome publish failed"))
		return
	}

	p.published.Add(1)
	lgr.Logger.Debug(
		"outcome published",
		slog.Int("worker", worker),
		slog.Bool("secondary", outcome.HasSecondary()),
	)
}
