package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	boardnet "StudyBoard/internal/net"
	"StudyBoard/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the whiteboard server",
	Long: `Run the reference whiteboard server: the sync endpoints backed by SQLite
(or Postgres with --database-url) and the per-session broadcast socket.

With --redis, broadcasts are shared with other replicas. With --advertise,
the server announces itself on the local network over mDNS and prints a
studyboard:// link for --session.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("addr", "a", "", "Address to listen on (default from config, :8080)")
	serveCmd.Flags().String("db", "", "SQLite database path")
	serveCmd.Flags().String("database-url", "", "Postgres URL; overrides --db")
	serveCmd.Flags().String("redis", "", "Redis address for cross-replica broadcast")
	serveCmd.Flags().String("token", "", "Bearer token required from clients (optional)")
	serveCmd.Flags().Bool("advertise", false, "Announce the server over mDNS")
	serveCmd.Flags().String("session", "", "Session to put in the share link (default: a new id)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(true)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		cfg.ListenAddr = v
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.DBPath = v
	}
	if v, _ := cmd.Flags().GetString("database-url"); v != "" {
		cfg.DatabaseURL = v
	}
	if v, _ := cmd.Flags().GetString("redis"); v != "" {
		cfg.RedisAddr = v
	}
	if v, _ := cmd.Flags().GetString("token"); v != "" {
		cfg.Token = v
	}
	if cmd.Flags().Changed("advertise") {
		cfg.Advertise, _ = cmd.Flags().GetBool("advertise")
	}
	sessionID, _ := cmd.Flags().GetString("session")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store server.Store
	if cfg.DatabaseURL != "" {
		store, err = server.OpenPostgres(ctx, cfg.DatabaseURL, logger)
	} else {
		store, err = server.OpenSQLite(cfg.DBPath, logger)
	}
	if err != nil {
		return err
	}
	defer store.Close()

	hub := boardnet.NewHub(logger)
	srv := server.New(server.Config{ListenAddr: cfg.ListenAddr, Token: cfg.Token}, store, hub, logger)
	if err := srv.Start(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.RedisAddr != "" {
		fanout, err := server.NewRedisFanout(ctx, cfg.RedisAddr, logger)
		if err != nil {
			srv.Shutdown(context.Background())
			return err
		}
		defer fanout.Close()
		hub.SetFanout(fanout)
		g.Go(func() error { return fanout.Run(ctx, hub) })
	}

	port := srv.Addr().(*net.TCPAddr).Port
	if cfg.Advertise {
		mdnsServer, err := boardnet.Advertise(port, sessionID)
		if err != nil {
			logger.Warn("mDNS advertise failed", "err", err)
		} else {
			defer mdnsServer.Shutdown()
			logger.Info("advertising over mDNS", "port", port)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Share this link: %s\n", boardnet.ShareLink(boardnet.OutgoingIP(), port, sessionID))

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
