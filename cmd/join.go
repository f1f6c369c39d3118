package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"StudyBoard/internal/board"
	"StudyBoard/internal/codec"
	"StudyBoard/internal/state"
)

var joinCmd = &cobra.Command{
	Use:   "join <session-id|studyboard://link>",
	Short: "Join a whiteboard and edit it from the terminal",
	Long: `Join a whiteboard session and read commands from stdin:

  draw x,y;x,y;...  [color] [width]   add a stroke
  text x,y message...                 add a text label
  erase <id>...                       erase operations by id
  clear                               wipe the board
  list                                print the visible operations
  status                              print sync status and version
  flush                               push queued operations now
  quit                                flush and leave

Colors are a palette name (black, red, green, blue, yellow, white),
#RRGGBB, #AARRGGBB or a decimal ARGB integer.`,
	Args: cobra.ExactArgs(1),
	RunE: runJoin,
}

func init() {
	rootCmd.AddCommand(joinCmd)
}

func runJoin(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(false)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	s, err := openSession(ctx, cfg, logger, args[0], func(visible []state.Operation) {
		logger.Debug("board changed", "visible", len(visible))
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "joined as %s, %d operations on the board\n", cfg.UserID, len(s.Visible()))

	err = repl(ctx, s, cmd.InOrStdin(), out)
	if cerr := closeSession(s); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func repl(ctx context.Context, s *board.Session, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		quit, err := execLine(ctx, s, line, out)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
	return sc.Err()
}

// execLine runs one REPL command against s.
func execLine(ctx context.Context, s *board.Session, line string, out io.Writer) (quit bool, err error) {
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "draw":
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return false, fmt.Errorf("usage: draw x,y;x,y [color] [width]")
		}
		d, err := parseStroke(fields)
		if err != nil {
			return false, err
		}
		op, err := s.Draw(ctx, d.Points, d.Color, d.StrokeWidth)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(out, op.ID)
	case "text":
		at, msg, ok := strings.Cut(rest, " ")
		if !ok || strings.TrimSpace(msg) == "" {
			return false, fmt.Errorf("usage: text x,y message")
		}
		pos, err := parsePoint(at)
		if err != nil {
			return false, err
		}
		op, err := s.Text(ctx, strings.TrimSpace(msg), pos, state.DefaultFontSize, state.DefaultColor)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(out, op.ID)
	case "erase":
		ids := strings.Fields(rest)
		if len(ids) == 0 {
			return false, fmt.Errorf("usage: erase <id>...")
		}
		if _, err := s.Erase(ctx, ids...); err != nil {
			return false, err
		}
	case "clear":
		if _, err := s.Clear(ctx); err != nil {
			return false, err
		}
	case "list":
		printOps(out, s.Visible())
	case "status":
		fmt.Fprintf(out, "%s version=%d pending=%d\n", s.SyncStatus(), s.Version(), s.Pending())
	case "flush":
		return false, s.Flush(ctx)
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", verb)
	}
	return false, nil
}

// parseStroke reads "points [color] [width]" using the broadcast field
// rules, so malformed points are dropped the same way peers drop them.
func parseStroke(fields []string) (*state.Draw, error) {
	data := map[string]string{"type": string(state.OpDraw), "points": fields[0]}
	if len(fields) > 1 {
		c, err := parseColor(fields[1])
		if err != nil {
			return nil, err
		}
		data["color"] = strconv.FormatInt(int64(int32(c)), 10)
	}
	if len(fields) > 2 {
		data["strokeWidth"] = fields[2]
	}
	op, ok := codec.DecodeBroadcast(data, 0)
	if !ok {
		return nil, fmt.Errorf("invalid stroke")
	}
	d := op.(*state.Draw)
	if len(d.Points) == 0 {
		return nil, fmt.Errorf("stroke has no valid points")
	}
	return d, nil
}

func parsePoint(s string) (state.Point, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return state.Point{}, fmt.Errorf("point %q: want x,y", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 32)
	if err != nil {
		return state.Point{}, fmt.Errorf("point %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 32)
	if err != nil {
		return state.Point{}, fmt.Errorf("point %q: %w", s, err)
	}
	return state.Point{X: float32(x), Y: float32(y)}, nil
}

func parseColor(s string) (state.Color, error) {
	if c, ok := state.Palette[strings.ToLower(s)]; ok {
		return c, nil
	}
	if hex, ok := strings.CutPrefix(s, "#"); ok {
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return 0, fmt.Errorf("color %q: %w", s, err)
		}
		switch len(hex) {
		case 6:
			return state.Color(0xFF000000 | v), nil
		case 8:
			return state.Color(v), nil
		}
		return 0, fmt.Errorf("color %q: want #RRGGBB or #AARRGGBB", s)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < -1<<31 || v > 1<<32-1 {
		return 0, fmt.Errorf("color %q: not a hex or ARGB integer", s)
	}
	return state.Color(uint32(v)), nil
}

func printOps(out io.Writer, ops []state.Operation) {
	for _, op := range ops {
		m := state.MetaOf(op)
		switch o := op.(type) {
		case *state.Draw:
			fmt.Fprintf(out, "%s draw  by %s: %d points, #%08X, width %.1f\n", m.ID, m.UserID, len(o.Points), uint32(o.Color), o.StrokeWidth)
		case *state.Text:
			fmt.Fprintf(out, "%s text  by %s: %q at %.1f,%.1f\n", m.ID, m.UserID, o.Text, o.Position.X, o.Position.Y)
		default:
			fmt.Fprintf(out, "%s %s by %s\n", m.ID, op.Kind(), m.UserID)
		}
	}
}
