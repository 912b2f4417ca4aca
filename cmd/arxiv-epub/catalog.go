// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/arxiv-epub/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the metadata cache and run log",
	Long: `Catalog reads the local SQLite database that caches resolved paper
metadata and records the outcome of every run. Use --catalog to point at a
database other than .arxiv-epub/catalog.db.`,
}

// --- list subcommand ---

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached papers",
	Args:  cobra.NoArgs,
	RunE:  runCatalogList,
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	store, err := openCatalog()
	if err != nil {
		return err
	}
	defer store.Close()

	papers, err := store.Papers(context.Background())
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return writeJSON(os.Stdout, papers)
	}

	if len(papers) == 0 {
		fmt.Println("No cached papers.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-18s  %-20s  %-4s  %s\n", "ID", "Surname", "Year", "Title")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 90))
	for _, p := range papers {
		fmt.Fprintf(os.Stdout, "%-18s  %-20s  %-4s  %s\n",
			p.ID, truncate(p.Surname, 20), p.Year, truncate(p.Title, 60))
	}
	fmt.Fprintf(os.Stdout, "\n%d papers\n", len(papers))
	return nil
}

// --- runs subcommand ---

var catalogRunsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List recent runs, or the outcomes of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCatalogRuns,
}

func runCatalogRuns(cmd *cobra.Command, args []string) error {
	store, err := openCatalog()
	if err != nil {
		return err
	}
	defer store.Close()

	jsonOutput, _ := cmd.Flags().GetBool("json")
	ctx := context.Background()

	if len(args) == 1 {
		runID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid run ID %q: %w", args[0], err)
		}
		outcomes, err := store.Outcomes(ctx, runID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(os.Stdout, outcomes)
		}
		for _, o := range outcomes {
			detail := o.Path
			if o.Error != "" {
				detail = o.Error
			}
			fmt.Fprintf(os.Stdout, "%-8s  %-4s  %-18s  %s\n", o.Status, o.Kind, o.Identifier, detail)
		}
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.Runs(ctx, limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(os.Stdout, runs)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-36s  %-20s  %8s  %7s  %6s  %s\n",
		"Run", "Started", "Produced", "Skipped", "Failed", "Input")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
	for _, r := range runs {
		fmt.Fprintf(os.Stdout, "%-36s  %-20s  %8d  %7d  %6d  %s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Produced, r.Skipped, r.Failed, r.Input)
	}
	return nil
}

// --- export subcommand ---

var catalogExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export cached papers and their artifacts to YAML or JSON",
	Long: `Export writes every cached paper, with the paths of the artifacts
produced for it, to catalog.yaml or catalog.json. The file goes next to the
database unless --dir is given.`,
	Args: cobra.NoArgs,
	RunE: runCatalogExport,
}

func runCatalogExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	dir, _ := cmd.Flags().GetString("dir")

	store, err := openCatalog()
	if err != nil {
		return err
	}
	defer store.Close()

	if dir == "" {
		dir = filepath.Dir(store.Path())
	}

	var path string
	switch format {
	case "yaml", "":
		path, err = store.ExportYAML(context.Background(), dir)
	case "json":
		path, err = store.ExportJSON(context.Background(), dir)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Exported to %s\n", path)
	return nil
}

// --- shared helpers ---

func openCatalog() (*catalog.Store, error) {
	path := viper.GetString("catalog")
	if path == "" {
		return nil, fmt.Errorf("catalog disabled: set --catalog to a database path")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no catalog at %s: %w", path, err)
	}
	return catalog.Open(path)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func init() {
	catalogListCmd.Flags().Bool("json", false, "output as JSON")

	catalogRunsCmd.Flags().Bool("json", false, "output as JSON")
	catalogRunsCmd.Flags().Int("limit", 20, "number of runs to show")

	catalogExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	catalogExportCmd.Flags().String("dir", "", "output directory (default: next to the database)")

	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogRunsCmd)
	catalogCmd.AddCommand(catalogExportCmd)

	rootCmd.AddCommand(catalogCmd)
}
