package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/smallnest/moviegraph/catalog"
	"github.com/smallnest/moviegraph/log"
	"github.com/smallnest/moviegraph/rag"
	"github.com/smallnest/moviegraph/render"
	"github.com/spf13/cobra"
)

func newIndexCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the movie vector index",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Create the vector index if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withCatalog(cmd, false, func(c *catalog.Catalog) error {
				created, err := c.EnsureVectorIndex(cmd.Context())
				if err != nil {
					return err
				}
				index := a.cfg.VectorIndex()
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "created vector index %s on :%s(%s)\n", index.Name, index.Label, index.Property)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "vector index %s already exists\n", index.Name)
				}
				return nil
			})
		},
	})
	return cmd
}

func newEmbedCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Generate movie embeddings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "missing",
		Short: "Embed every movie without an embedding and store the vectors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withCatalog(cmd, true, func(c *catalog.Catalog) error {
				report, err := c.EmbedMissing(cmd.Context())
				printReport(cmd.OutOrStdout(), report)
				return err
			})
		},
	})

	csvCmd := &cobra.Command{
		Use:   "csv",
		Short: "Embed every movie with an overview into a CSV file without touching the graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("output")
			return a.withCatalog(cmd, true, func(c *catalog.Catalog) error {
				return writeFile(path, cmd.OutOrStdout(), func(w io.Writer) error {
					report, err := c.GenerateCSV(cmd.Context(), w)
					if path != "-" {
						printReport(cmd.OutOrStdout(), report)
					}
					return err
				})
			})
		},
	}
	csvCmd.Flags().StringP("output", "o", "movie_embeddings.csv", "output file, - for stdout")
	cmd.AddCommand(csvCmd)
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored embeddings to a CSV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("output")
			return a.withCatalog(cmd, false, func(c *catalog.Catalog) error {
				return writeFile(path, cmd.OutOrStdout(), func(w io.Writer) error {
					n, err := c.ExportCSV(cmd.Context(), w)
					if err == nil && path != "-" {
						fmt.Fprintf(cmd.OutOrStdout(), "exported %d embeddings to %s\n", n, path)
					}
					return err
				})
			})
		},
	}
	cmd.Flags().StringP("output", "o", "movie_embeddings.csv", "output file, - for stdout")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Load embeddings from a CSV file onto the matching movies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return a.withCatalog(cmd, false, func(c *catalog.Catalog) error {
				report, err := c.ImportCSV(cmd.Context(), in)
				printReport(cmd.OutOrStdout(), report)
				return err
			})
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count nodes per label and relationships per type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withCatalog(cmd, false, func(c *catalog.Catalog) error {
				stats, err := c.Stats(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, render.Table([]string{"Label", "Nodes"}, countRows(stats.Nodes)))
				fmt.Fprintln(out, render.Table([]string{"Relationship", "Count"}, countRows(stats.Relationships)))
				fmt.Fprintf(out, "%d %s nodes have embeddings\n", stats.Embedded, a.cfg.Index.Label)
				return nil
			})
		},
	}
}

func newSchemaCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the graph schema the query generator sees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.deps.openGraph(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer closeStore(cmd.Context(), db)

			ontology, err := rag.NewOntologyIntrospector(db, a.cfg.Pipeline.CallTimeout).Introspect(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if raw, _ := cmd.Flags().GetBool("raw"); raw {
				fmt.Fprintln(out, ontology.String())
				return nil
			}
			rows := make([][]string, 0, len(ontology.NodeTypes)+len(ontology.RelationshipTypes))
			for _, nt := range ontology.NodeTypes {
				rows = append(rows, []string{"node", nt.Name, strings.Join(nt.Properties, ", ")})
			}
			for _, rel := range ontology.RelationshipTypes {
				rows = append(rows, []string{"relationship", rel, ""})
			}
			fmt.Fprintln(out, render.Table([]string{"Kind", "Name", "Properties"}, rows))
			return nil
		},
	}
	cmd.Flags().Bool("raw", false, "print the prompt text instead of a table")
	return cmd
}

// withCatalog runs fn on a catalog over a freshly opened store and closes the store after.
func (a *app) withCatalog(cmd *cobra.Command, withEmbedder bool, fn func(*catalog.Catalog) error) error {
	c, db, err := a.newCatalog(cmd.Context(), withEmbedder)
	if err != nil {
		return err
	}
	defer closeStore(cmd.Context(), db)
	return fn(c)
}

// writeFile runs fn on the file at path, or on stdout when path is "-".
func writeFile(path string, stdout io.Writer, fn func(io.Writer) error) error {
	if path == "-" {
		return fn(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printReport(out io.Writer, r catalog.Report) {
	fmt.Fprintln(out, render.Table(
		[]string{"Total", "Embedded", "Skipped", "Failed", "Unmatched"},
		[][]string{{strconv.Itoa(r.Total), strconv.Itoa(r.Embedded), strconv.Itoa(r.Skipped), strconv.Itoa(r.Failed), strconv.Itoa(r.Unmatched)}},
	))
}

func countRows(counts []catalog.Count) [][]string {
	rows := make([][]string, len(counts))
	for i, c := range counts {
		rows[i] = []string{c.Name, strconv.FormatInt(c.Count, 10)}
	}
	return rows
}

func closeStore(ctx context.Context, db rag.GraphStore) {
	if err := db.Close(context.WithoutCancel(ctx)); err != nil {
		log.Warn("closing graph store: %v", err)
	}
}
