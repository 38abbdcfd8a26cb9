package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/doc2speech/internal/config"
	"github.com/book-expert/doc2speech/internal/core"
	"github.com/book-expert/doc2speech/internal/segment"
	"github.com/book-expert/doc2speech/internal/tts/audio"
	"github.com/book-expert/logger"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// File permissions for fragments.
	filePermissions = 0o600
	limiterBurst    = 1
)

// Static errors.
var (
	ErrNoSegments   = errors.New("no segments to synthesize")
	ErrNilWorkspace = errors.New("workspace cannot be nil")
)

const (
	logFmtBatchStart     = "Synthesizing %d segments in %s with %d worker(s), %s between calls"
	logFmtGeneratedAudio = "Generated fragment %d/%d: %s (%d bytes)"
	logFmtSegmentFailed  = "Failed to synthesize segment %d/%d: %v"
	logFmtBatchDone      = "Synthesized %d segments in %s"
	errFmtSegmentFailed  = "segment %d/%d: %w"
	errFmtWriteFragment  = "failed to write fragment %s: %w"
)

// Workspace hands out fragment paths. A path must be registered for cleanup
// before it is returned, so that a fragment is never written to an untracked
// location.
type Workspace interface {
	FragmentPath(index int) string
}

// Engine orchestrates speech synthesis for a whole document. Calls are spread
// over a bounded worker pool and paced by a token bucket shared by every
// batch of the process, so the provider never sees more than one call per
// pause interval however many workers run.
type Engine struct {
	synthesizer core.Synthesizer
	limiter     *rate.Limiter
	workers     int
	pause       time.Duration
	timeout     time.Duration
	logger      *logger.Logger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithPause overrides the minimum interval between the starts of two
// synthesis calls. Zero disables pacing.
func WithPause(pause time.Duration) EngineOption {
	return func(e *Engine) {
		e.pause = pause
	}
}

// NewEngine creates an Engine that calls synthesizer according to cfg.
func NewEngine(synthesizer core.Synthesizer, cfg config.SpeechConfig, log *logger.Logger, opts ...EngineOption) *Engine {
	engine := &Engine{
		synthesizer: synthesizer,
		workers:     max(cfg.Workers, 1),
		pause:       cfg.Pause(),
		timeout:     cfg.Timeout(),
		logger:      log,
	}

	for _, opt := range opts {
		opt(engine)
	}

	limit := rate.Inf
	if engine.pause > 0 {
		limit = rate.Every(engine.pause)
	}

	engine.limiter = rate.NewLimiter(limit, limiterBurst)

	return engine
}

// SynthesizeSegments produces one fragment per segment and returns their
// paths indexed by segment position, regardless of the order in which the
// calls completed. The first failure cancels the outstanding calls and is
// returned wrapped in core.ErrSynthesis. Fragments written before the
// failure stay registered in ws for the caller to release.
func (e *Engine) SynthesizeSegments(
	ctx context.Context,
	segments []segment.Segment,
	language string,
	ws Workspace,
) ([]string, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrSynthesis, ErrNoSegments)
	}

	if ws == nil {
		return nil, fmt.Errorf("%w: %w", core.ErrSynthesis, ErrNilWorkspace)
	}

	started := time.Now()
	e.logger.Info(logFmtBatchStart, len(segments), language, e.workers, e.pause)

	paths := make([]string, len(segments))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.workers)

	for position, seg := range segments {
		if groupCtx.Err() != nil {
			break
		}

		group.Go(func() error {
			path, err := e.synthesizeOne(groupCtx, seg, position, len(segments), language, ws)
			if err != nil {
				return err
			}

			paths[position] = path

			return nil
		})
	}

	waitErr := group.Wait()
	if waitErr != nil {
		return nil, waitErr
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrSynthesis, ctxErr)
	}

	e.logger.Info(logFmtBatchDone, len(segments), time.Since(started).Round(time.Millisecond))

	return paths, nil
}

func (e *Engine) synthesizeOne(
	ctx context.Context,
	seg segment.Segment,
	position, total int,
	language string,
	ws Workspace,
) (string, error) {
	data, err := e.generateSpeechAudio(ctx, seg.Text, language)
	if err == nil {
		err = audio.ValidateFragment(data)
	}

	if err != nil {
		if ctx.Err() == nil {
			e.logger.Error(logFmtSegmentFailed, position+1, total, err)
		}

		return "", segmentError(position, total, err)
	}

	path := ws.FragmentPath(position)

	writeErr := os.WriteFile(path, data, filePermissions)
	if writeErr != nil {
		return "", segmentError(position, total, fmt.Errorf(errFmtWriteFragment, path, writeErr))
	}

	e.logger.Info(logFmtGeneratedAudio, position+1, total, path, len(data))

	return path, nil
}

func (e *Engine) generateSpeechAudio(ctx context.Context, text, language string) ([]byte, error) {
	waitErr := e.limiter.Wait(ctx)
	if waitErr != nil {
		return nil, waitErr
	}

	callCtx := ctx

	if e.timeout > 0 {
		var cancel context.CancelFunc

		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	return e.synthesizer.Synthesize(callCtx, text, language)
}

func segmentError(position, total int, err error) error {
	wrapped := fmt.Errorf(errFmtSegmentFailed, position+1, total, err)
	if errors.Is(err, core.ErrSynthesis) {
		return wrapped
	}

	return fmt.Errorf("%w: %w", core.ErrSynthesis, wrapped)
}
