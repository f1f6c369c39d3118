package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"StudyBoard/internal/board"
	"StudyBoard/internal/state"
)

var drawCmd = &cobra.Command{
	Use:   "draw <session-id|studyboard://link>",
	Short: "Add one stroke or text label and exit",
	Long: `Add a single operation to a whiteboard, wait for the server to
acknowledge it, and exit.

  studyboard draw room --points "0,0;10,10" --color "#E53935" --width 5
  studyboard draw room --text "x = 4" --at 20,40`,
	Args: cobra.ExactArgs(1),
	RunE: runDraw,
}

func init() {
	rootCmd.AddCommand(drawCmd)

	drawCmd.Flags().String("points", "", "Stroke points as x,y;x,y;...")
	drawCmd.Flags().String("color", "#000000", "Color as a palette name, #RRGGBB, #AARRGGBB or ARGB integer")
	drawCmd.Flags().Float32("width", state.DefaultStrokeWidth, "Stroke width")
	drawCmd.Flags().String("text", "", "Text label instead of a stroke")
	drawCmd.Flags().String("at", "0,0", "Text position as x,y")
	drawCmd.Flags().Float32("font-size", state.DefaultFontSize, "Text font size")
}

func runDraw(cmd *cobra.Command, args []string) error {
	points, _ := cmd.Flags().GetString("points")
	text, _ := cmd.Flags().GetString("text")
	if (points == "") == (text == "") {
		return fmt.Errorf("exactly one of --points or --text is required")
	}
	colorFlag, _ := cmd.Flags().GetString("color")
	color, err := parseColor(colorFlag)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig(false)
	if err != nil {
		return err
	}
	ctx := context.Background()
	s, err := openSession(ctx, cfg, logger, args[0], nil)
	if err != nil {
		return err
	}

	id, err := submitOne(ctx, cmd, s, points, text, color)
	if cerr := closeSession(s); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func submitOne(ctx context.Context, cmd *cobra.Command, s *board.Session, points, text string, color state.Color) (string, error) {
	if points != "" {
		width, _ := cmd.Flags().GetFloat32("width")
		d, err := parseStroke([]string{points})
		if err != nil {
			return "", err
		}
		op, err := s.Draw(ctx, d.Points, color, width)
		if err != nil {
			return "", err
		}
		return op.ID, nil
	}

	at, _ := cmd.Flags().GetString("at")
	size, _ := cmd.Flags().GetFloat32("font-size")
	pos, err := parsePoint(at)
	if err != nil {
		return "", err
	}
	op, err := s.Text(ctx, text, pos, size, color)
	if err != nil {
		return "", err
	}
	return op.ID, nil
}
