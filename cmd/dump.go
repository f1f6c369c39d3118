package cmd

import (
	"fmt"

	"github.com/sanity-io/litter"
	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <session-id|studyboard://link>",
	Short: "Print the stored operation log for debugging",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().Bool("all", false, "Include erase and clear markers")
}

func runDump(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(false)
	if err != nil {
		return err
	}
	wb, err := fetchLog(cmd.Context(), cfg, args[0])
	if err != nil {
		return err
	}
	ops := wb.Visible()
	if all, _ := cmd.Flags().GetBool("all"); all {
		ops = wb.Operations()
	}

	opts := litter.Options{
		HidePrivateFields: true,
		StripPackageNames: true,
		Compact:           false,
	}
	fmt.Fprintln(cmd.OutOrStdout(), opts.Sdump(ops))
	return nil
}
