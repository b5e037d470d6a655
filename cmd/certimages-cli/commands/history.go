package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"certimages-backend/lib/certid"
	"certimages-backend/services/certimages/db"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	pruneBefore  time.Duration
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of lookups to show.")
	historyCmd.Flags().DurationVar(&pruneBefore, "prune-before", 0, "Delete lookups older than this age (e.g. 720h) before listing.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [certificate number] --db <path/to/history.db>",
	Short: "Shows recorded lookups, with their images when a certificate is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database == "" {
			return fmt.Errorf("no database configured, pass --db")
		}
		database, err := openDatabase(cfg.Database)
		if err != nil {
			return err
		}
		defer database.Close()

		ctx := cmd.Context()
		qry := db.New(database)

		if pruneBefore > 0 {
			cutoff, err := pruneHistory(ctx, qry, pruneBefore, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("pruned lookups before %s\n", cutoff.Format(time.DateTime))
		}

		var lookups []db.Lookup
		if len(args) == 0 {
			lookups, err = qry.GetRecentLookups(ctx, int64(historyLimit))
		} else {
			id, normErr := certid.Normalize(args[0])
			if normErr != nil {
				return normErr
			}
			lookups, err = qry.GetLookups(ctx, db.GetLookupsParams{
				Identifier: id,
				Limit:      int64(historyLimit),
			})
		}
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Time", "Certificate", "Title", "Tier", "Mode", "Result"})
		for _, l := range lookups {
			result := l.Error
			if result == "" {
				images, err := qry.GetImages(ctx, l.ID)
				if err != nil {
					return err
				}
				result = fmt.Sprintf("%d images", len(images))
				if len(args) > 0 {
					for _, img := range images {
						result += "\n" + img.Url
					}
				}
			}
			t.AppendRow(table.Row{
				time.Unix(l.LookedUpAt, 0).Format(time.DateTime),
				l.Identifier,
				l.Title,
				l.Tier,
				l.Mode,
				result,
			})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}

// pruneHistory deletes the lookups recorded more than age before now,
// their images go with them.
func pruneHistory(ctx context.Context, qry *db.Queries, age time.Duration, now time.Time) (time.Time, error) {
	cutoff := now.Add(-age)
	err := qry.DeleteLookupsBefore(ctx, cutoff.Unix())
	if err != nil {
		return time.Time{}, err
	}
	return cutoff, nil
}
