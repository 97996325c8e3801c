package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-voiceagent/pkg/catalog"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the model catalogue",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := catalog.Default()
		creds := cfg.Credentials(cat)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tPROVIDER\tSTATUS\tDEFAULT VOICE\tKEY SET\tNAME")
		for _, m := range cat.Models() {
			marker := ""
			if m.Key == cat.DefaultModel() {
				marker = " (default)"
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t%t\t%s\n",
				m.Key, marker, m.Provider, m.Status, cat.ResolveVoice(m, ""), creds[m.Provider] != "", m.Name)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Printf("\nFallback chain: %s\n", strings.Join(cat.FallbackChain(), " -> "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
