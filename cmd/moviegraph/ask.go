package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/smallnest/moviegraph/log"
	"github.com/smallnest/moviegraph/rag"
	"github.com/smallnest/moviegraph/render"
	"github.com/spf13/cobra"
)

func newAskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question by generating and running a Cypher query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runOnce(cmd, rag.ModeAnswer, strings.Join(args, " "))
		},
	}
	cmd.Flags().Bool("show-query", false, "print the generated Cypher query")
	return cmd
}

func newRecommendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recommend <description>",
		Short: "Recommend movies similar to a description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runOnce(cmd, rag.ModeRecommend, strings.Join(args, " "))
		},
	}
}

func newChatCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively",
		Long:  "Reads one question per line until EOF or \"exit\". Lines starting with \"/recommend \" ask for recommendations instead.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.newPipeline(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer closePipeline(cmd.Context(), p)
			return a.chat(cmd.Context(), p, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	return cmd
}

func (a *app) runOnce(cmd *cobra.Command, mode rag.Mode, question string) error {
	p, err := a.newPipeline(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer closePipeline(cmd.Context(), p)

	result := p.Run(cmd.Context(), mode, question)
	out := cmd.OutOrStdout()
	if show, _ := cmd.Flags().GetBool("show-query"); show && result.Query != "" {
		fmt.Fprintln(out, render.Note(result.Query))
	}
	return a.printAnswer(out, result)
}

// printAnswer writes a result's answer. Failure answers carry store and model messages and
// are printed verbatim.
func (a *app) printAnswer(out io.Writer, result *rag.Result) error {
	if result.Err != nil {
		return render.Failure(out, a.format, result.Answer)
	}
	return render.Answer(out, a.format, result.Question, result.Answer)
}

func (a *app) chat(ctx context.Context, p *pipeline, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, render.Note("Ask about movies. Type exit to quit."))
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit":
			return nil
		}

		mode := rag.ModeAnswer
		if rest, ok := strings.CutPrefix(line, "/recommend "); ok {
			mode, line = rag.ModeRecommend, rest
		}
		result := p.Run(ctx, mode, line)
		if err := a.printAnswer(out, result); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func closePipeline(ctx context.Context, p *pipeline) {
	if err := p.Close(context.WithoutCancel(ctx)); err != nil {
		log.Warn("closing pipeline: %v", err)
	}
}
