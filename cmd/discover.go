package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	boardnet "StudyBoard/internal/net"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find whiteboard servers on the local network",
	Args:  cobra.NoArgs,
	RunE:  runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().Duration("timeout", 3*time.Second, "How long to listen for answers")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if _, _, err := loadConfig(false); err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	out := cmd.OutOrStdout()

	seen := map[string]bool{}
	err := boardnet.Browse(timeout, func(room boardnet.Room) {
		if seen[room.Addr] {
			return
		}
		seen[room.Addr] = true
		if room.SessionID == "" {
			fmt.Fprintf(out, "%s\t%s\n", room.Host, room.Addr)
			return
		}
		fmt.Fprintf(out, "%s\tstudyboard://%s/%s\n", room.Host, room.Addr, room.SessionID)
	})
	if err != nil {
		return fmt.Errorf("mDNS browse: %w", err)
	}
	if len(seen) == 0 {
		fmt.Fprintln(out, "no servers found")
	}
	return nil
}
