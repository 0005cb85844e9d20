package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
	"github.com/steliosspap/Argos-public-sub005/internal/store"
)

var outputFmt string

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "Print the stored escalation score of every zone",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		st, err := store.Open(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		scores, err := st.ListZoneScores(cmd.Context())
		if err != nil {
			return err
		}
		if outputFmt == "json" {
			return printJSON(cmd.OutOrStdout(), scores)
		}
		return printZones(cmd.OutOrStdout(), scores, time.Now(), 2*cfg.Escalation.Interval)
	},
}

func init() {
	zonesCmd.Flags().StringVarP(&outputFmt, "output", "o", "text", "output format: text, json")
	rootCmd.AddCommand(zonesCmd)
}

func printZones(w io.Writer, scores []model.ZoneScore, now time.Time, staleAfter time.Duration) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ZONE\tSCORE\tPREVIOUS\tEVENTS\tCALCULATED\t")
	for _, s := range scores {
		age := now.Sub(s.CalculatedAt).Truncate(time.Second).String()
		if staleAfter > 0 && now.Sub(s.CalculatedAt) > staleAfter {
			age += " (stale)"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s ago\t\n", s.Zone, s.Score, s.PreviousScore, s.EventCount, age)
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
