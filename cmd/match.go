package main

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/txscreen/internal/refdata"
	"github.com/sells-group/txscreen/internal/screen"
)

var (
	matchThreshold int
	matchBlacklist string
)

var matchCmd = &cobra.Command{
	Use:   "match name [name...]",
	Short: "Show the closest blacklist entry for each name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("blacklist") {
			cfg.Input.Blacklist = matchBlacklist
		}
		if cmd.Flags().Changed("threshold") {
			cfg.Screen.FuzzyThreshold = matchThreshold
		}
		if err := cfg.Validate("match"); err != nil {
			return err
		}
		if cfg.Input.Blacklist == "" {
			return eris.New("match: a blacklist is required (--blacklist or TXSCREEN_INPUT_BLACKLIST)")
		}

		entries, err := refdata.LoadBlacklist(cmd.Context(), newOpener(), cfg.Input.Blacklist, cfg.Input.BlacklistElement)
		if err != nil {
			return err
		}
		return printMatches(cmd.OutOrStdout(), screen.NewMatcher(entries, cfg.Screen.FuzzyThreshold), args)
	},
}

func init() {
	matchCmd.Flags().IntVar(&matchThreshold, "threshold", 0, "fuzzy name match threshold (0-100)")
	matchCmd.Flags().StringVar(&matchBlacklist, "blacklist", "", "blacklist location")
	rootCmd.AddCommand(matchCmd)
}

func printMatches(w io.Writer, m *screen.Matcher, names []string) error {
	for _, name := range names {
		best, ok := m.Best(name)
		verdict := "clear"
		if ok && best.Score >= m.Threshold() {
			verdict = "match"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", name, best.Entry.Name, best.Score, verdict); err != nil {
			return eris.Wrap(err, "match: write")
		}
	}
	return nil
}
