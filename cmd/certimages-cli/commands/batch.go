package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"certimages-backend/services/certimages"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	batchArgs    lookupFlags
	batchWorkers int
	batchFile    string
)

func init() {
	batchArgs.register(batchCmd)
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 0, "Lookups in flight at once.")
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "Read certificate numbers from this file, one per line, - for stdin.")
	rootCmd.AddCommand(batchCmd)
}

// readIdentifiers returns the non empty lines of r, lines starting
// with # are comments.
func readIdentifiers(r io.Reader) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, scanner.Err()
}

func batchInput(args []string) ([]string, error) {
	ids := append([]string(nil), args...)
	if batchFile == "" {
		return ids, nil
	}

	var r io.Reader = os.Stdin
	if batchFile != "-" {
		f, err := os.Open(batchFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	fromFile, err := readIdentifiers(r)
	if err != nil {
		return nil, err
	}
	return append(ids, fromFile...), nil
}

func renderBatch(results []certimages.BatchResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Input", "Certificate", "Title", "Images", "Error"})
	for _, r := range results {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
			if hint := describeError(r.Err); hint != "" {
				errText = hint
			}
		}
		t.AppendRow(table.Row{r.Input, r.Identifier, r.Title, len(r.Images), errText})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

var batchCmd = &cobra.Command{
	Use:   "batch [certificate numbers...] [--file ids.txt] [--workers 4]",
	Short: "Looks up many certificates concurrently.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := batchInput(args)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("no certificate numbers given")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		batchArgs.apply(&cfg)
		if batchWorkers > 0 {
			cfg.Workers = batchWorkers
		}
		tier, mode, err := tierAndMode(cfg, batchArgs.tier, batchArgs.mode)
		if err != nil {
			return err
		}

		service, cleanup, err := newService(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		results := service.Batch(cmd.Context(), ids, tier, mode, cfg.Workers)
		renderBatch(results)
		return certimages.BatchErr(results)
	},
}
