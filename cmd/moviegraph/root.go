package main

import (
	"fmt"

	"github.com/smallnest/moviegraph/config"
	"github.com/smallnest/moviegraph/log"
	"github.com/smallnest/moviegraph/render"
	"github.com/spf13/cobra"
)

// app is what every subcommand shares once flags and configuration are resolved.
type app struct {
	deps   deps
	cfg    *config.Config
	format render.Format
}

// NewRootCmd creates the root moviegraph command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultDeps())
}

func newRootCmd(d deps) *cobra.Command {
	a := &app{deps: d}

	root := &cobra.Command{
		Use:           "moviegraph",
		Short:         "Ask questions about a movie knowledge graph",
		Long:          "moviegraph answers natural-language questions about a movie graph by generating Cypher, and maintains the embeddings behind its vector search.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("env-file", "", "path to .env file (default ./.env)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error or none")
	root.PersistentFlags().StringP("format", "f", "text", "answer format: text, styled, markdown or html")

	root.AddCommand(
		newAskCmd(a),
		newRecommendCmd(a),
		newChatCmd(a),
		newSchemaCmd(a),
		newIndexCmd(a),
		newEmbedCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newStatsCmd(a),
		newHistoryCmd(a),
	)
	return root
}

// init loads the environment file and configuration, then applies the global flags.
func (a *app) init(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()

	envFile, _ := flags.GetString("env-file")
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}

	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if level, _ := flags.GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	log.SetDefaultLogger(log.NewWriterLogger(cmd.ErrOrStderr(), level))

	formatFlag, _ := flags.GetString("format")
	if a.format, err = render.ParseFormat(formatFlag); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}
