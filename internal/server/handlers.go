package server

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/doc2speech/internal/core"
	"github.com/book-expert/doc2speech/internal/objectstore"
	"github.com/book-expert/doc2speech/internal/pipeline"
	"github.com/book-expert/doc2speech/internal/tts/ttsutils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Form fields.
const (
	fieldDocument  = "document"
	fieldLanguage  = "tts_language"
	fieldTranslate = "translate_checkbox"
	checkboxOn     = "on"
)

const mimeAudioMPEG = "audio/mpeg"

// User-facing form errors.
const (
	msgNoDocument       = "No file was found in the request."
	msgUnsupportedType  = "This file type is not allowed. Please upload a ."
	msgUnknownLanguage  = "The selected voice language is not supported."
	msgUploadFailed     = "The uploaded file could not be saved."
	msgArtifactNotFound = "audio file not found"
)

const (
	logFmtUploadSaved   = "Saved upload %s (%s)"
	logFmtUploadFailed  = "Failed to save upload %s: %v"
	logFmtRemoveUpload  = "Failed to remove upload %s: %v"
	logFmtConverted     = "Converted %s into %s"
	logFmtArtifactStore = "Failed to read artifact %s: %v"
)

type pageData struct {
	Languages       []Language
	Selected        string
	ShouldTranslate bool
	TargetLanguage  string
	Extensions      string
	ErrorMessage    string
	AudioFile       string
	Language        string
	Segments        int
	Duration        string
}

func (s *Server) newPage(selected string, translate bool) pageData {
	if selected == "" {
		selected = s.cfg.Speech.DefaultLanguage
	}

	return pageData{
		Languages:       Languages,
		Selected:        selected,
		ShouldTranslate: translate,
		TargetLanguage:  s.cfg.Translation.TargetLanguage,
		Extensions:      s.extensions(),
	}
}

func (s *Server) render(c *fiber.Ctx, status int, data pageData) error {
	var body bytes.Buffer

	err := s.page.Execute(&body, data)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)

	return c.Status(status).Send(body.Bytes())
}

func (s *Server) handleForm(c *fiber.Ctx) error {
	return s.render(c, fiber.StatusOK, s.newPage("", false))
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleConvert saves the upload, runs the pipeline and re-renders the form
// with either the audio player or the error message.
func (s *Server) handleConvert(c *fiber.Ctx) error {
	language := c.FormValue(fieldLanguage, s.cfg.Speech.DefaultLanguage)
	translate := c.FormValue(fieldTranslate) == checkboxOn
	page := s.newPage(language, translate)

	header, err := c.FormFile(fieldDocument)
	if err != nil {
		page.ErrorMessage = msgNoDocument

		return s.render(c, fiber.StatusBadRequest, page)
	}

	if !ttsutils.IsAllowedExtension(header.Filename, s.cfg.Server.AllowedExtensions) {
		page.ErrorMessage = msgUnsupportedType + s.extensions() + " file."

		return s.render(c, fiber.StatusBadRequest, page)
	}

	if !translate && !isKnownLanguage(language) {
		page.ErrorMessage = msgUnknownLanguage

		return s.render(c, fiber.StatusBadRequest, page)
	}

	uploadPath := filepath.Join(s.cfg.Paths.UploadDir, uploadName(header.Filename))

	err = c.SaveFile(header, uploadPath)
	if err != nil {
		s.log.Error(logFmtUploadFailed, header.Filename, err)
		page.ErrorMessage = msgUploadFailed

		return s.render(c, fiber.StatusInternalServerError, page)
	}

	s.log.Info(logFmtUploadSaved, uploadPath, ttsutils.FormatFileSize(header.Size))

	// The pipeline removes the upload after extraction; this covers runs that
	// never got that far.
	defer s.removeUpload(uploadPath)

	ctx := c.UserContext()

	err = s.gate.Acquire(ctx, 1)
	if err != nil {
		page.ErrorMessage = core.UserMessage(err)

		return s.render(c, fiber.StatusServiceUnavailable, page)
	}
	defer s.gate.Release(1)

	result, err := s.runner.Run(ctx, pipeline.Request{
		DocumentPath:   uploadPath,
		Extension:      ttsutils.GetFileExtension(header.Filename),
		Language:       language,
		Translate:      translate,
		RemoveDocument: true,
	})
	if err != nil {
		page.ErrorMessage = core.UserMessage(err)

		return s.render(c, statusFor(err), page)
	}

	s.log.Info(logFmtConverted, header.Filename, result.ArtifactName)

	page.AudioFile = result.ArtifactName
	page.Language = result.Language
	page.Segments = result.Segments
	page.Duration = ttsutils.FormatDuration(result.Duration)

	return s.render(c, fiber.StatusOK, page)
}

// handleArtifact serves a finished artifact from local disk, falling back to
// the mirror.
func (s *Server) handleArtifact(c *fiber.Ctx) error {
	name := filepath.Base(c.Params("filename"))
	if !ttsutils.IsValidAudioFile(name) {
		return fiber.NewError(fiber.StatusNotFound, msgArtifactNotFound)
	}

	for _, store := range s.artifacts {
		data, err := store.Download(c.UserContext(), name)
		if err == nil {
			c.Set(fiber.HeaderContentType, mimeAudioMPEG)

			return c.Send(data)
		}

		if !errors.Is(err, objectstore.ErrNotFound) {
			s.log.Warn(logFmtArtifactStore, name, err)
		}
	}

	return fiber.NewError(fiber.StatusNotFound, msgArtifactNotFound)
}

func (s *Server) removeUpload(path string) {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn(logFmtRemoveUpload, path, err)
	}
}

func uploadName(filename string) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + ttsutils.SanitizeFilename(filename)
}

func isKnownLanguage(code string) bool {
	for _, language := range Languages {
		if language.Code == code {
			return true
		}
	}

	return false
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrExtraction), errors.Is(err, core.ErrEmptyDocument):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, core.ErrConfiguration), errors.Is(err, core.ErrTranslationTransient):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, core.ErrTranslationTerminal), errors.Is(err, core.ErrSynthesis):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
