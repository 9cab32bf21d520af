package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/smallnest/moviegraph/rag"
	"github.com/smallnest/moviegraph/render"
	"github.com/smallnest/moviegraph/store"
	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "List recent requests from the query journal, or show one in full",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := a.deps.openJournal(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			if journal == nil {
				return errors.New("no query journal configured (set journal.backend)")
			}
			defer journal.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				entry, err := journal.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s  %s  %s\n", entry.ID, entry.StartedAt.Format(time.RFC3339), entry.Duration.Round(time.Millisecond))
				fmt.Fprintf(out, "Q: %s\n", entry.Question)
				if entry.Query != "" {
					fmt.Fprintln(out, render.Note(entry.Query))
				}
				if entry.Failed() {
					fmt.Fprintf(out, "failed in %s (%s): %s\n", entry.FailedStage, entry.ErrorKind, entry.Error)
					return render.Failure(out, a.format, entry.Answer)
				}
				return render.Answer(out, a.format, entry.Question, entry.Answer)
			}

			limit, _ := cmd.Flags().GetInt("limit")
			entries, err := journal.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, render.Table(
				[]string{"ID", "Started", "Mode", "Question", "Results", "Status", "Duration"},
				historyRows(entries),
			))
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "number of entries to list, 0 for all")
	return cmd
}

func historyRows(entries []*store.Entry) [][]string {
	rows := make([][]string, len(entries))
	for i, e := range entries {
		status := "ok"
		if e.Failed() {
			status = e.FailedStage
		}
		rows[i] = []string{
			e.ID[:min(8, len(e.ID))],
			e.StartedAt.Format("2006-01-02 15:04:05"),
			e.Mode,
			rag.Truncate(e.Question, 48),
			strconv.Itoa(e.ResultCount),
			status,
			e.Duration.Round(time.Millisecond).String(),
		}
	}
	return rows
}
