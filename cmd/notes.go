package main

import (
	"fmt"

	"github.com/0xlemi/guitartune/internal/pitch"
	"github.com/0xlemi/guitartune/internal/tuning"
	"github.com/spf13/cobra"
)

func newNotesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notes",
		Short: "Print the note table; standard tuning strings are marked with *",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			for _, n := range pitch.Notes() {
				mark := " "
				if tuning.IsStandard(n.Name) {
					mark = "*"
				}
				if _, err := fmt.Fprintf(w, "%s %-4s %9.2f Hz\n", mark, n.Name, n.Frequency); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
