package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/khaledhikmat/vs-belt/model"
	"github.com/khaledhikmat/vs-belt/service/config"
	"github.com/khaledhikmat/vs-belt/service/inference"
	"github.com/khaledhikmat/vs-belt/service/lgr"
	"github.com/khaledhikmat/vs-belt/service/storage"
	"golang.org/x/xerrors"
)

var errFrameUnavailable = errors.New("no frame available")

// Orchestrator runs the two stage classification once per interval. A
// tick never fails as a whole: every error skips the stage it happened in.
type Orchestrator struct {
	cfgSvc       config.IService
	frames       FrameProvider
	inferenceSvc inference.IService
	storageSvc   storage.IService
	publisher    OutcomePublisher
	errorStream  chan interface{}
	statsStream  chan interface{}
	gate         Gate

	// Only touched from the goroutine running Tick.
	stats         model.OrchestratorStats
	totalTickTime time.Duration
	startTime     time.Time
}

func NewOrchestrator(cfgSvc config.IService,
	frames FrameProvider,
	inferenceSvc inference.IService,
	storageSvc storage.IService,
	publisher OutcomePublisher,
	errorStream chan interface{},
	statsStream chan interface{}) *Orchestrator {
	return &Orchestrator{
		cfgSvc:       cfgSvc,
		frames:       frames,
		inferenceSvc: inferenceSvc,
		storageSvc:   storageSvc,
		publisher:    publisher,
		errorStream:  errorStream,
		statsStream:  statsStream,
		gate: Gate{
			Label:     cfgSvc.GetGateLabel(),
			Threshold: cfgSvc.GetGateThreshold(),
		},
		startTime: time.Now(),
	}
}

// Run ticks immediately and then once per inference interval until the
// context is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	interval := o.cfgSvc.GetInferenceInterval()
	if interval <= 0 {
		return xerrors.Errorf("inference interval must be positive, got %s", interval)
	}

	statsPeriod := o.cfgSvc.GetStatsPeriod()
	if statsPeriod <= 0 {
		statsPeriod = time.Minute
	}
	statsTicker := time.NewTicker(statsPeriod)
	defer statsTicker.Stop()

	lgr.Logger.Info(
		"orchestrator starting....",
		slog.Duration("interval", interval),
		slog.String("gateLabel", o.gate.Label),
		slog.Float64("gateThreshold", o.gate.Threshold),
		slog.String("primaryRegion", o.cfgSvc.GetPrimaryRegion().String()),
		slog.String("secondaryRegion", o.cfgSvc.GetSecondaryRegion().String()),
	)

	defer func() {
		report(o.statsStream, o.Stats())
	}()

	for {
		o.Tick(ctx)

		timer := time.NewTimer(interval)
	wait:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				lgr.Logger.Info("orchestrator context cancelled")
				return nil
			case <-statsTicker.C:
				report(o.statsStream, o.Stats())
			case <-timer.C:
				break wait
			}
		}
	}
}

// Tick performs one pass of the pipeline. Every log line of the pass
// carries the same trace id.
func (o *Orchestrator) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	ctx = lgr.WithTrace(ctx)
	start := time.Now()
	o.stats.Ticks++
	defer func() {
		o.totalTickTime += time.Since(start)
	}()

	frame, err := o.latest(ctx)
	if err != nil {
		o.stats.FrameMisses++
		lgr.Logger.WarnContext(ctx, "skipping tick, frame unavailable", lgr.Err(err))
		return
	}
	defer frame.Mat.Close()

	primaryRegion := o.cfgSvc.GetPrimaryRegion()
	primary, err := o.classifyRegion(ctx, &frame, primaryRegion, o.cfgSvc.GetPrimaryInferenceURL())
	if err != nil {
		o.stats.PrimaryFailures++
		return
	}

	AnnotateText(&frame.Mat, ResultText(primaryRegion.Name, primary.Label, primary.Confidence), primaryTextOrigin, primaryText)
	o.store(ctx, primaryRegion.Name, frame)

	outcome := model.PipelineOutcome{
		PrimaryLabel:      primary.Label,
		PrimaryConfidence: primary.Confidence,
	}

	if !o.gate.Fires(primary) {
		o.publish(ctx, outcome)
		return
	}

	o.stats.GateOpened++
	lgr.Logger.InfoContext(ctx,
		"gate opened, running secondary stage",
		slog.String("label", primary.Label),
		slog.Float64("confidence", primary.Confidence),
	)

	secondary, err := o.secondaryStage(ctx)
	if err != nil {
		o.stats.SecondaryFailures++
		if ctx.Err() != nil {
			return
		}
		if !o.cfgSvc.GetPublishPrimaryOnSecondaryFailure() {
			lgr.Logger.WarnContext(ctx, "secondary stage failed, no outcome published for this tick", lgr.Err(err))
			return
		}
		lgr.Logger.WarnContext(ctx, "secondary stage failed, publishing primary outcome only", lgr.Err(err))
		o.publish(ctx, outcome)
		return
	}

	o.publish(ctx, outcome.WithSecondary(secondary.Label, secondary.Confidence))
}

func (o *Orchestrator) Stats() model.OrchestratorStats {
	stats := o.stats
	stats.Uptime = int64(time.Since(o.startTime).Seconds())
	if stats.Ticks > 0 {
		stats.AvgTickTime = o.totalTickTime.Seconds() / float64(stats.Ticks)
	}
	return stats
}

// secondaryStage waits for the belt to move, then classifies the secondary
// region of a newer frame.
func (o *Orchestrator) secondaryStage(ctx context.Context) (inference.Result, error) {
	if !sleep(ctx, o.cfgSvc.GetSettleDelay()) {
		return inference.Result{}, ctx.Err()
	}

	frame, err := o.latest(ctx)
	if err != nil {
		return inference.Result{}, xerrors.Errorf("secondary frame: %w", err)
	}
	defer frame.Mat.Close()

	region := o.cfgSvc.GetSecondaryRegion()
	res, err := o.classifyRegion(ctx, &frame, region, o.cfgSvc.GetSecondaryInferenceURL())
	if err != nil {
		return inference.Result{}, err
	}

	AnnotateText(&frame.Mat, ResultText(region.Name, res.Label, res.Confidence), secondaryTextOrigin, secondaryText)
	o.store(ctx, region.Name, frame)
	return res, nil
}

func (o *Orchestrator) latest(ctx context.Context) (FrameData, error) {
	waitCtx, cancel := context.WithTimeout(ctx, o.cfgSvc.GetFrameWaitTimeout())
	defer cancel()

	frame, err := o.frames.Latest(waitCtx)
	if err != nil {
		return FrameData{}, xerrors.Errorf("%v: %w", errFrameUnavailable, err)
	}
	return frame, nil
}

// classifyRegion crops the region, outlines it on the frame and sends the
// crop to the endpoint. The crop is taken before drawing so the outline
// never leaks into what gets classified.
func (o *Orchestrator) classifyRegion(ctx context.Context, frame *FrameData, region model.Region, endpoint string) (inference.Result, error) {
	crop, err := Crop(frame.Mat, region)
	if err != nil {
		o.fail(ctx, region, endpoint, err, "region crop failed")
		return inference.Result{}, err
	}
	defer crop.Close()

	DrawRegion(&frame.Mat, region)

	image, err := EncodeJPEG(crop)
	if err != nil {
		o.fail(ctx, region, endpoint, err, "region encode failed")
		return inference.Result{}, err
	}

	classifyCtx, cancel := context.WithTimeout(ctx, o.cfgSvc.GetClassifyTimeout())
	defer cancel()

	res, err := o.inferenceSvc.Classify(classifyCtx, endpoint, image)
	if err != nil {
		o.fail(ctx, region, endpoint, err, "classification failed")
		return inference.Result{}, err
	}

	lgr.Logger.DebugContext(ctx,
		"region classified",
		slog.String("region", region.Name),
		slog.String("label", res.Label),
		slog.Float64("confidence", res.Confidence),
	)
	return res, nil
}

func (o *Orchestrator) store(ctx context.Context, stage string, frame FrameData) {
	path, err := o.storageSvc.StoreFrame(stage, frame.Mat, frame.Timestamp)
	if err != nil {
		lgr.Logger.ErrorContext(ctx, "failed to persist annotated frame", slog.String("stage", stage), lgr.Err(err))
		report(o.errorStream, model.GenError("orchestrator",
			err,
			map[string]interface{}{"stage": stage},
			"annotated frame not persisted"))
		return
	}
	lgr.Logger.DebugContext(ctx, "annotated frame persisted", slog.String("path", path))
}

func (o *Orchestrator) publish(ctx context.Context, outcome model.PipelineOutcome) {
	attrs := []any{
		slog.String("primaryLabel", outcome.PrimaryLabel),
		slog.Float64("primaryConfidence", outcome.PrimaryConfidence),
	}
	if outcome.HasSecondary() {
		attrs = append(attrs,
			slog.String("secondaryLabel", outcome.SecondaryLabel),
			slog.Float64("secondaryConfidence", *outcome.SecondaryConfidence),
		)
	}
	lgr.Logger.Log(ctx, lgr.LevelImportant, "Data", attrs...)

	o.stats.Published++
	o.publisher.Publish(outcome)
}

func (o *Orchestrator) fail(ctx context.Context, region model.Region, endpoint string, err error, msg string) {
	if ctx.Err() != nil {
		return
	}
	lgr.Logger.ErrorContext(ctx, msg,
		slog.String("region", region.Name),
		slog.String("endpoint", endpoint),
		lgr.Err(err),
	)
	report(o.errorStream, model.GenError("orchestrator",
		err,
		map[string]interface{}{"region": region.Name, "endpoint": endpoint},
		"%s", msg))
}
