package main

import (
	"fmt"
	"os"

	"github.com/book-expert/doc2speech/internal/config"
	"github.com/book-expert/doc2speech/internal/core"
	"github.com/book-expert/doc2speech/internal/extract"
	"github.com/book-expert/doc2speech/internal/notifier"
	"github.com/book-expert/doc2speech/internal/objectstore"
	"github.com/book-expert/doc2speech/internal/pipeline"
	"github.com/book-expert/doc2speech/internal/translate"
	"github.com/book-expert/doc2speech/internal/tts"
	"github.com/book-expert/doc2speech/internal/tts/audio"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
)

const (
	bootstrapLogFile = "doc2speech-bootstrap.log"
	logFile          = "doc2speech.log"
	natsClientName   = "doc2speech"
)

// application holds everything a command needs once configuration is loaded.
type application struct {
	cfg            *config.Config
	log            *logger.Logger
	pipeline       *pipeline.Pipeline
	mirror         core.ObjectStore
	natsConnection *nats.Conn
}

func setupLogger(logPath, file string) (*logger.Logger, error) {
	log, err := logger.New(logPath, file)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

// loadConfig reads configPath when it is set and asks the central
// configurator otherwise.
func loadConfig(configPath string) (*config.Config, error) {
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return nil, err
	}

	defer func() { _ = bootstrapLog.Close() }()

	bootstrapLog.Info("Bootstrap logger created.")

	var cfg *config.Config

	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(bootstrapLog)
	}

	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	return cfg, nil
}

// newApplication wires the pipeline described by cfg.
func newApplication(cfg *config.Config) (*application, error) {
	err := cfg.EnsureDirectories()
	if err != nil {
		return nil, err
	}

	log, err := setupLogger(cfg.Paths.BaseLogsDir, logFile)
	if err != nil {
		return nil, err
	}

	app := &application{cfg: cfg, log: log}

	concatenator, err := newConcatenator(cfg.Concat, log)
	if err != nil {
		app.close()

		return nil, err
	}

	if cfg.Translation.APIKey == "" {
		log.Warn("No translation API key configured; translated conversions will be refused.")
	}

	deps := pipeline.Dependencies{
		Extractor:    extract.New(log),
		Translator:   translate.New(cfg.Translation, log),
		Engine:       tts.NewEngine(tts.NewHTTPClient(cfg.Speech.BaseURL, cfg.Speech.Timeout()), cfg.Speech, log),
		Concatenator: concatenator,
	}

	if cfg.NATS.URL != "" {
		err = app.connectNATS(&deps)
		if err != nil {
			app.close()

			return nil, err
		}
	}

	app.pipeline = pipeline.New(cfg, deps, log)

	return app, nil
}

func newConcatenator(cfg config.ConcatConfig, log *logger.Logger) (core.Concatenator, error) {
	if cfg.Strategy == config.ConcatStrategyFFmpeg {
		concatenator, err := audio.NewFFmpegConcatenator(cfg.FFmpegPath, cfg.Timeout(), log)
		if err != nil {
			return nil, fmt.Errorf("failed to create ffmpeg concatenator: %w", err)
		}

		return concatenator, nil
	}

	return audio.NewMemoryConcatenator(log), nil
}

// connectNATS enables the artifact mirror and announcements.
func (a *application) connectNATS(deps *pipeline.Dependencies) error {
	natsConnection, err := nats.Connect(a.cfg.NATS.URL, nats.Name(natsClientName))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", a.cfg.NATS.URL, err)
	}

	a.natsConnection = natsConnection

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.NewNatsObjectStore(jetstreamContext, a.cfg.NATS.ArtifactBucket)
	if err != nil {
		return err
	}

	publisher, err := notifier.New(natsConnection, a.cfg.NATS.ArtifactCreatedSubject, a.log)
	if err != nil {
		return err
	}

	a.mirror = store
	deps.Store = store
	deps.Notifier = publisher

	a.log.Info("Mirroring artifacts to bucket %s and announcing them on %s",
		a.cfg.NATS.ArtifactBucket, a.cfg.NATS.ArtifactCreatedSubject)

	return nil
}

func (a *application) close() {
	if a.natsConnection != nil {
		drainErr := a.natsConnection.Drain()
		if drainErr != nil {
			a.log.Warn("Failed to drain NATS connection: %v", drainErr)
		}
	}

	closeErr := a.log.Close()
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
	}
}
