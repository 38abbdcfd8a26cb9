// Package pipeline sequences one document through extraction, translation or
// cleanup, segmentation, speech synthesis and concatenation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/doc2speech/internal/config"
	"github.com/book-expert/doc2speech/internal/core"
	"github.com/book-expert/doc2speech/internal/segment"
	"github.com/book-expert/doc2speech/internal/tts"
	"github.com/book-expert/doc2speech/internal/tts/audio"
	"github.com/book-expert/doc2speech/internal/tts/text"
	"github.com/book-expert/doc2speech/internal/tts/ttsutils"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
)

const (
	artifactPrefix    = "tts_"
	artifactExtension = ".mp3"
)

const (
	logFmtRunStart        = "Starting conversion of %s (translate=%t, language=%s)"
	logFmtExtracted       = "Extracted %d characters"
	logFmtTranslated      = "Translated document to %s in %d attempt(s)"
	logFmtCleaned         = "Cleaned document text: %d -> %d characters"
	logFmtSegmented       = "Split text into %d segments of at most %d characters"
	logFmtArtifact        = "Created artifact %s (%s, %s)"
	logFmtProbeFailed     = "Failed to read duration of %s: %v"
	logFmtMirrorFailed    = "Failed to mirror artifact %s: %v"
	logFmtNotifyFailed    = "Failed to announce artifact %s: %v"
	logFmtRunFailed       = "Conversion of %s failed: %v"
	logFmtRecovered       = "Recovered from panic during conversion of %s: %v"
	logFmtRemoveFile      = "Failed to remove %s: %v"
	errFmtRecovered       = "%w: %v"
	errFmtWrap            = "%w: %w"
	errTranslatorMissing  = "translation was requested but no translator is configured"
	errFmtWorkspaceFailed = "failed to prepare workspace: %w"
	errFmtReadArtifact    = "failed to read artifact %s: %w"
)

// Request describes one conversion.
type Request struct {
	// DocumentPath is the uploaded file on disk.
	DocumentPath string
	// Extension selects the extractor, e.g. "pdf".
	Extension string
	// Language is the synthesis language chosen by the user. It is replaced by
	// the translation target when Translate is set.
	Language string
	// Translate routes the text through the translation service.
	Translate bool
	// RemoveDocument deletes DocumentPath as soon as its text is extracted.
	RemoveDocument bool
}

// Result describes the artifact of a successful conversion.
type Result struct {
	ArtifactName string
	ArtifactPath string
	Language     string
	Segments     int
	Characters   int
	Duration     time.Duration
	Translated   bool
}

// SpeechEngine synthesizes a batch of segments into fragment files.
type SpeechEngine interface {
	SynthesizeSegments(ctx context.Context, segments []segment.Segment, language string, ws tts.Workspace) ([]string, error)
}

// Dependencies are the collaborators of a Pipeline. Translator, Store and
// Notifier are optional.
type Dependencies struct {
	Extractor    core.TextExtractor
	Translator   core.Translator
	Engine       SpeechEngine
	Concatenator core.Concatenator
	Store        core.ObjectStore
	Notifier     core.Notifier
}

// Pipeline runs conversions. It holds no per-run state, so one Pipeline can
// serve concurrent runs; each run gets its own Workspace.
type Pipeline struct {
	deps            Dependencies
	cleaner         *text.Cleaner
	segmentMaxChars int
	defaultLanguage string
	workDir         string
	staticDir       string
	log             *logger.Logger
}

// New creates a Pipeline from the loaded configuration.
func New(cfg *config.Config, deps Dependencies, log *logger.Logger) *Pipeline {
	return &Pipeline{
		deps:            deps,
		cleaner:         text.NewCleaner(),
		segmentMaxChars: cfg.Speech.SegmentMaxChars,
		defaultLanguage: cfg.Speech.DefaultLanguage,
		workDir:         cfg.Paths.WorkDir,
		staticDir:       cfg.Paths.StaticDir,
		log:             log,
	}
}

// Run converts one document into an MP3 artifact in the static directory.
// Every returned error wraps one of the core failure classes. All fragments
// and manifests of the run are removed before Run returns, including when a
// collaborator panics.
func (p *Pipeline) Run(ctx context.Context, req Request) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error(logFmtRecovered, req.DocumentPath, r)

			result = Result{}
			err = fmt.Errorf(errFmtRecovered, core.ErrUnexpected, r)
		}
	}()

	language := req.Language
	if language == "" {
		language = p.defaultLanguage
	}

	p.log.Info(logFmtRunStart, req.DocumentPath, req.Translate, language)

	result, err = p.run(ctx, req, language)
	if err != nil {
		p.log.Error(logFmtRunFailed, req.DocumentPath, err)
	}

	return result, err
}

func (p *Pipeline) run(ctx context.Context, req Request, language string) (Result, error) {
	extracted, err := p.deps.Extractor.Extract(ctx, req.DocumentPath, req.Extension)

	if req.RemoveDocument {
		p.removeFile(req.DocumentPath)
	}

	if err != nil {
		return Result{}, classify(core.ErrExtraction, err)
	}

	p.log.Info(logFmtExtracted, len([]rune(extracted)))

	speechText, language, err := p.prepareText(ctx, extracted, language, req.Translate)
	if err != nil {
		return Result{}, err
	}

	if text.IsBlank(speechText) {
		return Result{}, core.ErrEmptyDocument
	}

	segments, err := segment.Split(speechText, p.segmentMaxChars)
	if err != nil {
		return Result{}, classify(core.ErrConfiguration, err)
	}

	p.log.Info(logFmtSegmented, len(segments), p.segmentMaxChars)

	ws, err := NewWorkspace(p.workDir, p.log)
	if err != nil {
		return Result{}, fmt.Errorf(errFmtWrap, core.ErrUnexpected, fmt.Errorf(errFmtWorkspaceFailed, err))
	}
	// Release errors are logged by the workspace and never replace the
	// outcome of the run.
	defer func() { _ = ws.Release() }()

	fragments, err := p.deps.Engine.SynthesizeSegments(ctx, segments, language, ws)
	if err != nil {
		return Result{}, classify(core.ErrSynthesis, err)
	}

	artifactName := newArtifactName()
	artifactPath := filepath.Join(p.staticDir, artifactName)

	err = p.deps.Concatenator.Concatenate(ctx, fragments, artifactPath)
	if err != nil {
		p.removeFile(artifactPath)

		return Result{}, classify(core.ErrConcatProcess, err)
	}

	result := Result{
		ArtifactName: artifactName,
		ArtifactPath: artifactPath,
		Language:     language,
		Segments:     len(segments),
		Characters:   len([]rune(speechText)),
		Duration:     p.artifactDuration(artifactPath),
		Translated:   req.Translate,
	}

	p.log.Info(logFmtArtifact, artifactName, ttsutils.FormatDuration(result.Duration), language)

	p.publish(ctx, artifactName, artifactPath)

	return result, nil
}

// prepareText returns the text to synthesize and the synthesis language.
func (p *Pipeline) prepareText(ctx context.Context, extracted, language string, translate bool) (string, string, error) {
	if !translate {
		cleaned := p.cleaner.Clean(extracted)
		p.log.Info(logFmtCleaned, len([]rune(extracted)), len([]rune(cleaned)))

		return cleaned, language, nil
	}

	if p.deps.Translator == nil {
		return "", "", fmt.Errorf("%w: %s", core.ErrConfiguration, errTranslatorMissing)
	}

	if text.IsBlank(extracted) {
		return "", "", core.ErrEmptyDocument
	}

	translation, err := p.deps.Translator.Translate(ctx, extracted)
	if err != nil {
		return "", "", classify(core.ErrTranslationTerminal, err)
	}

	p.log.Info(logFmtTranslated, translation.Language, translation.Attempts)

	return translation.Text, translation.LanguageCode, nil
}

func (p *Pipeline) artifactDuration(path string) time.Duration {
	info, err := audio.ProbeFile(path)
	if err != nil {
		p.log.Warn(logFmtProbeFailed, path, err)

		return 0
	}

	return info.Duration
}

// publish mirrors and announces the artifact. Both steps are best effort.
func (p *Pipeline) publish(ctx context.Context, name, path string) {
	if p.deps.Store != nil {
		err := p.mirror(ctx, name, path)
		if err != nil {
			p.log.Warn(logFmtMirrorFailed, name, err)
		}
	}

	if p.deps.Notifier != nil {
		err := p.deps.Notifier.ArtifactCreated(ctx, name)
		if err != nil {
			p.log.Warn(logFmtNotifyFailed, name, err)
		}
	}
}

func (p *Pipeline) mirror(ctx context.Context, name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf(errFmtReadArtifact, path, err)
	}

	return p.deps.Store.Upload(ctx, name, data)
}

func (p *Pipeline) removeFile(path string) {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		p.log.Warn(logFmtRemoveFile, path, err)
	}
}

func newArtifactName() string {
	return artifactPrefix + strings.ReplaceAll(uuid.NewString(), "-", "") + artifactExtension
}

// classify makes sure err carries a core failure class, using fallback when
// the collaborator did not attach one.
func classify(fallback, err error) error {
	for _, class := range failureClasses {
		if errors.Is(err, class) {
			return err
		}
	}

	return fmt.Errorf(errFmtWrap, fallback, err)
}

var failureClasses = []error{
	core.ErrConfiguration,
	core.ErrExtraction,
	core.ErrEmptyDocument,
	core.ErrTranslationTransient,
	core.ErrTranslationTerminal,
	core.ErrSynthesis,
	core.ErrConcatToolMissing,
	core.ErrConcatTimeout,
	core.ErrConcatProcess,
	core.ErrUnexpected,
}
