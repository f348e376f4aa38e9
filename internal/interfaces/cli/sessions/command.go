package sessions

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	appsession "github.com/skyguide-inc/skyguide/internal/application/session"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/config"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/database"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/pubsub"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/repository"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

var userID string

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Session record maintenance",
	}

	cmd.AddCommand(newSweepCommand(), newListCommand())
	return cmd
}

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Invalidate every active session past its expiry",
		Long: `Invalidate expired session records once. Connected clients learn about
the change through Redis when it is reachable, otherwise on their next
validation tick.`,
		RunE: runSweep,
	}
}

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's active sessions",
		RunE:  runList,
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "User ID (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

// recordService builds a record service over the configured database. The
// returned cleanup closes the database and, if one was opened, Redis.
func recordService(ctx context.Context) (*appsession.RecordService, func(), error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(&cfg.Logger, cfg.Server.IsDebug()); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := database.Init(&cfg.Database); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	log := logger.NewLogger()

	cleanup := func() { _ = database.Close() }

	var publisher repository.ChangePublisher
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warnw("redis unreachable, change events will not be published", "error", err)
		_ = client.Close()
	} else {
		publisher = pubsub.NewRedisSessionFeed(client, log)
		cleanup = func() {
			_ = client.Close()
			_ = database.Close()
		}
	}

	repo := repository.NewSessionRepository(database.Get(), publisher, log)
	return appsession.NewRecordService(repo, nil, nil, nil, cfg.Session.TTL, log), cleanup, nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	svc, cleanup, err := recordService(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := svc.SweepExpired(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %d expired session(s)\n", n)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	svc, cleanup, err := recordService(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	records, err := svc.ListActiveSessions(cmd.Context(), userID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tIP\tPLATFORM\tLANGUAGE\tLAST ACTIVITY\tEXPIRES")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.IPAddress,
			r.DeviceInfo.Platform,
			r.DeviceInfo.Language,
			r.LastActivity.Format(time.RFC3339),
			r.ExpiresAt.Format(time.RFC3339),
		)
	}
	return w.Flush()
}
