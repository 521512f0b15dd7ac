package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var presetsJSON bool

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the available baselines, extras and populators",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		reg, err := registryFor(cfg)
		if err != nil {
			return err
		}
		list := reg.List()
		out := cmd.OutOrStdout()
		if presetsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(list)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KIND\tID\tLABEL")
		for _, d := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Kind, d.ID, d.Label)
		}
		return tw.Flush()
	},
}

func init() {
	presetsCmd.Flags().BoolVar(&presetsJSON, "json", false, "Print descriptors as JSON")
}
