package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/book-expert/doc2speech/internal/core"
	"github.com/book-expert/doc2speech/internal/pipeline"
	"github.com/book-expert/doc2speech/internal/tts/ttsutils"
	"github.com/spf13/cobra"
)

const outputPermissions = 0o644

var errUnsupportedDocument = errors.New("unsupported document type")

type convertOptions struct {
	language  string
	translate bool
	output    string
}

func newConvertCommand(configPath *string) *cobra.Command {
	var opts convertOptions

	cmd := &cobra.Command{
		Use:   "convert <document>",
		Short: "Convert one PDF or TXT document into an MP3 file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd.Context(), *configPath, args[0], opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.language, "lang", "l", "", "synthesis language code (default from configuration)")
	cmd.Flags().BoolVarP(&opts.translate, "translate", "t", false, "translate the document before synthesis")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "also copy the artifact to this path")

	return cmd
}

func runConvert(ctx context.Context, configPath, document string, opts convertOptions, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if !ttsutils.IsAllowedExtension(document, cfg.Server.AllowedExtensions) {
		return fmt.Errorf("%w: %s", errUnsupportedDocument, document)
	}

	app, err := newApplication(cfg)
	if err != nil {
		return err
	}
	defer app.close()

	if ctx == nil {
		ctx = context.Background()
	}

	result, err := app.pipeline.Run(ctx, pipeline.Request{
		DocumentPath: document,
		Extension:    ttsutils.GetFileExtension(document),
		Language:     opts.language,
		Translate:    opts.translate,
	})
	if err != nil {
		fmt.Fprintln(stderr, core.UserMessage(err))

		return err
	}

	artifact := result.ArtifactPath

	if opts.output != "" {
		err = copyFile(result.ArtifactPath, opts.output)
		if err != nil {
			return err
		}

		artifact = opts.output
	}

	fmt.Fprintf(stdout, "%s\t%s\t%d segment(s)\t%s\n",
		artifact, ttsutils.FormatDuration(result.Duration), result.Segments, result.Language)

	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read artifact %s: %w", src, err)
	}

	err = os.WriteFile(dst, data, outputPermissions)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}

	return nil
}
