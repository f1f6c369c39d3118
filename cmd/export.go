package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"StudyBoard/internal/config"
	"StudyBoard/internal/export"
	"StudyBoard/internal/state"
)

var exportCmd = &cobra.Command{
	Use:   "export <session-id|studyboard://link> <file.pdf|file.png>",
	Short: "Render the stored whiteboard to PDF or PNG",
	Args:  cobra.ExactArgs(2),
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(false)
	if err != nil {
		return err
	}
	wb, err := fetchLog(cmd.Context(), cfg, args[0])
	if err != nil {
		return err
	}
	visible := wb.Visible()

	path := args[1]
	render := export.PDF
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
	case ".png":
		render = export.PNG
	default:
		return fmt.Errorf("%s: want a .pdf or .png file", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := render(f, visible); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d operations to %s\n", len(visible), path)
	return nil
}

// fetchLog loads the stored whiteboard into a fresh log without joining
// the broadcast channel.
func fetchLog(ctx context.Context, cfg *config.Config, arg string) (*state.Log, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	baseURL, sessionID, err := target(cfg, arg)
	if err != nil {
		return nil, err
	}
	backend, err := newBackend(cfg, baseURL)
	if err != nil {
		return nil, err
	}
	st, err := backend.FetchState(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", sessionID, err)
	}
	l := state.NewLog()
	l.Reset(st.Operations)
	return l, nil
}
