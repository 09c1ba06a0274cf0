package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/txscreen/internal/refdata"
	"github.com/sells-group/txscreen/internal/screen"
)

var extractLenient bool

var extractCmd = &cobra.Command{
	Use:   "extract [address...]",
	Short: "Show the country token extracted from each address",
	Long:  "Prints the country token extracted from each address argument (or from each line of stdin when there are none) and whether it is sanctioned, known or unrecognized.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("lenient") {
			cfg.Screen.ExtractionMode = string(screen.ExtractStrict)
			if extractLenient {
				cfg.Screen.ExtractionMode = string(screen.ExtractLenient)
			}
		}
		if err := cfg.Validate("extract"); err != nil {
			return err
		}

		ctx := cmd.Context()
		j, err := refdata.LoadJurisdictions(ctx, newOpener(), cfg.Input.SanctionedCountries, cfg.Input.AllCountries)
		if err != nil {
			return err
		}
		ex := screen.NewExtractor(j, screen.ExtractionMode(cfg.Screen.ExtractionMode))

		if len(args) == 0 {
			sc := bufio.NewScanner(cmd.InOrStdin())
			for sc.Scan() {
				args = append(args, sc.Text())
			}
			if err := sc.Err(); err != nil {
				return eris.Wrap(err, "extract: read stdin")
			}
		}
		return printExtractions(cmd.OutOrStdout(), ex, j, args)
	},
}

func init() {
	extractCmd.Flags().BoolVar(&extractLenient, "lenient", false, "skip unrecognized address parts")
	rootCmd.AddCommand(extractCmd)
}

func printExtractions(w io.Writer, ex *screen.Extractor, j *screen.Jurisdictions, addresses []string) error {
	for _, addr := range addresses {
		token, ok := ex.Extract(addr)
		status := "none"
		switch {
		case !ok:
		case j.IsSanctioned(token):
			status = "sanctioned"
		case j.IsKnown(token):
			status = "known"
		default:
			status = "unrecognized"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", strings.TrimSpace(addr), token, status); err != nil {
			return eris.Wrap(err, "extract: write")
		}
	}
	return nil
}
