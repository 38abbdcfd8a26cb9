package main

import (
	"github.com/spf13/cobra"
)

const flagConfig = "config"

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "doc2speech",
		Short: "Turn PDF and text documents into spoken MP3 audio",
		Long: `doc2speech extracts the text of a PDF or TXT document, optionally
translates it, synthesizes speech segment by segment and joins the
fragments into one MP3 file.

Without --config the configuration is fetched through the central
configurator.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, flagConfig, "", "path to a TOML configuration file")

	root.AddCommand(newServeCommand(&configPath))
	root.AddCommand(newConvertCommand(&configPath))

	return root
}
