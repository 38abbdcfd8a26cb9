// Package server exposes the conversion pipeline as a small web utility: an
// upload form, the conversion endpoint and artifact downloads.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/book-expert/doc2speech/internal/config"
	"github.com/book-expert/doc2speech/internal/core"
	"github.com/book-expert/doc2speech/internal/objectstore"
	"github.com/book-expert/doc2speech/internal/pipeline"
	"github.com/book-expert/doc2speech/internal/tts/ttsutils"
	"github.com/book-expert/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/semaphore"
)

//go:embed templates/index.html
var templateFS embed.FS

const (
	appName      = "doc2speech"
	pageTemplate = "templates/index.html"
)

const (
	logFmtRequest   = "%s %s -> %d (%s)"
	logFmtListening = "Listening on %s"
)

// Runner converts one uploaded document.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// Language is one choice of the synthesis language select.
type Language struct {
	Code string
	Name string
}

// Languages offered by the form.
var Languages = []Language{
	{Code: "ro", Name: "Romanian"},
	{Code: "en", Name: "English"},
	{Code: "fr", Name: "French"},
	{Code: "de", Name: "German"},
	{Code: "it", Name: "Italian"},
	{Code: "es", Name: "Spanish"},
	{Code: "hu", Name: "Hungarian"},
}

// Server is the fiber application around a Runner.
type Server struct {
	app       *fiber.App
	runner    Runner
	artifacts []core.ObjectStore
	gate      *semaphore.Weighted
	page      *template.Template
	cfg       *config.Config
	log       *logger.Logger
}

// New builds the application. Artifacts are served from the static
// directory; mirror, when not nil, is consulted for artifacts that are no
// longer on local disk.
func New(cfg *config.Config, runner Runner, mirror core.ObjectStore, log *logger.Logger) (*Server, error) {
	page, err := template.ParseFS(templateFS, pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page template: %w", err)
	}

	err = ttsutils.EnsureDir(cfg.Paths.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare upload directory: %w", err)
	}

	local, err := objectstore.NewFileStore(cfg.Paths.StaticDir)
	if err != nil {
		return nil, err
	}

	artifacts := []core.ObjectStore{local}
	if mirror != nil {
		artifacts = append(artifacts, mirror)
	}

	s := &Server{
		runner:    runner,
		artifacts: artifacts,
		gate:      semaphore.NewWeighted(int64(cfg.Server.MaxConcurrentJobs)),
		page:      page,
		cfg:       cfg,
		log:       log,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               appName,
		BodyLimit:             cfg.Server.MaxUploadBytes(),
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	s.app.Use(recover.New())
	s.app.Use(s.logRequest)

	s.app.Get("/", s.handleForm)
	s.app.Post("/", s.handleConvert)
	s.app.Get("/static/:filename", s.handleArtifact)
	s.app.Get("/health", s.handleHealth)

	return s, nil
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on the configured address until Shutdown is called.
func (s *Server) Listen() error {
	s.log.System(logFmtListening, s.cfg.Server.Addr)

	return s.app.Listen(s.cfg.Server.Addr)
}

// Shutdown stops accepting connections and waits for running requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) logRequest(c *fiber.Ctx) error {
	started := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		status = fiberErr.Code
	}

	s.log.Info(logFmtRequest, c.Method(), c.Path(), status, time.Since(started).Round(time.Millisecond))

	return err
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)

	return c.Status(code).SendString(err.Error())
}

func (s *Server) extensions() string {
	return strings.Join(s.cfg.Server.AllowedExtensions, ", .")
}
