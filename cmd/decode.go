package cmd

import (
	"fmt"

	"github.com/AlfredBerg/rod-jobs/internal/redirect"
	"github.com/spf13/cobra"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <redirect-url>...",
	Short: "Print the destination of Bing redirect links",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, raw := range args {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), redirect.RealURL(raw)); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}
