package commands

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"certimages-backend/lib/certid"
	"certimages-backend/lib/imageurl"
	"certimages-backend/lib/scrapers/certpage"
	"certimages-backend/lib/transport"
	"certimages-backend/services/certimages"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type lookupFlags struct {
	tier      string
	mode      string
	noProbe   bool
	maxImages int
}

func (f *lookupFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.tier, "tier", "", "Image size: original, large, medium or small.")
	cmd.Flags().StringVar(&f.mode, "mode", "", "preview or download.")
	cmd.Flags().BoolVar(&f.noProbe, "no-probe", false, "Do not probe for images that are not linked from the page.")
	cmd.Flags().IntVar(&f.maxImages, "max", -1, "Keep at most this many images, front and back first.")
}

func (f *lookupFlags) apply(cfg *Config) {
	if f.noProbe {
		cfg.DisableProbing = true
	}
	if f.maxImages >= 0 {
		cfg.MaxImages = f.maxImages
	}
}

var lookupArgs lookupFlags

func init() {
	lookupArgs.register(lookupCmd)
	rootCmd.AddCommand(lookupCmd)
}

// describeError turns the error kinds a user can act on into advice.
func describeError(err error) string {
	switch {
	case errors.Is(err, certid.ErrInvalidIdentifier):
		return "the certificate number must contain digits"
	case errors.Is(err, certpage.ErrConnectionRefused):
		return "the connection was refused, check the network, firewall or proxy settings"
	case errors.Is(err, transport.ErrBlocked):
		return "the site is rate limiting us, wait a while or configure proxies"
	case errors.Is(err, certpage.ErrUnreachable):
		return "the certificate page could not be reached"
	}
	return ""
}

func renderImages(records []certimages.ImageRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "Face", "Tier", "Filename", "URL"})
	for i, r := range records {
		t.AppendRow(table.Row{
			strconv.Itoa(i + 1),
			imageurl.FaceOf(r.URL).String(),
			r.Tier,
			r.Filename,
			r.URL,
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <certificate number> [--tier large] [--mode preview]",
	Short: "Lists the photographs of a certificate.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		lookupArgs.apply(&cfg)
		tier, mode, err := tierAndMode(cfg, lookupArgs.tier, lookupArgs.mode)
		if err != nil {
			return err
		}

		service, cleanup, err := newService(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		records, title, err := service.DiscoverImages(cmd.Context(), args[0], tier, mode)
		if err != nil {
			if hint := describeError(err); hint != "" {
				return fmt.Errorf("%s: %w", hint, err)
			}
			return err
		}

		fmt.Println(title)
		if len(records) == 0 {
			fmt.Println("no images found")
			return nil
		}
		renderImages(records)
		return nil
	},
}
