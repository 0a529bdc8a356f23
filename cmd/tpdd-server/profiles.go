package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tpdd-server/internal/fname"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the built-in client compatibility profiles",
	Run:   runProfiles,
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}

func runProfiles(cmd *cobra.Command, args []string) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tFORMAT\tATTR\tFEATURES")
	for _, p := range fname.Profiles() {
		fmt.Fprintf(w, "%s\t%s\t%c\t%s\n", p.ID, formatSpec(p), p.DefaultAttr, featureList(p))
	}
	w.Flush()
}

func formatSpec(p fname.Profile) string {
	if p.BaseLen == 0 {
		return "raw"
	}
	s := fmt.Sprintf("%d.%d", p.BaseLen, p.ExtLen)
	if p.Pad {
		s += "p"
	}
	return s
}

func featureList(p fname.Profile) string {
	var fs []string
	if p.DME {
		fs = append(fs, "dme")
	}
	if p.MagicFiles {
		fs = append(fs, "magic")
	}
	if p.Upcase {
		fs = append(fs, "upcase")
	}
	if len(fs) == 0 {
		return "-"
	}
	return strings.Join(fs, ",")
}
