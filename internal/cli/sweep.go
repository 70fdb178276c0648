package cli

import (
	"fmt"
	"io"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/xraph/credits/lease"
)

func newSweepCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire every reservation past its expiry once",
		Long: "Runs one expiry sweep. When redis.addr is configured the sweep first takes the " +
			"fleet-wide lease and does nothing if another instance holds it.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if a.cfg.Redis.Addr != "" {
				client := goredis.NewClient(&goredis.Options{
					Addr:     a.cfg.Redis.Addr,
					Password: a.cfg.Redis.Password,
					DB:       a.cfg.Redis.DB,
				})
				defer client.Close()

				lock := lease.New(client, lease.WithKey(a.cfg.Sweep.LeaseKey), lease.WithTTL(a.cfg.Sweep.LeaseTTL))
				held, err := lock.TryAcquire(ctx)
				if err != nil {
					return err
				}
				if !held {
					a.logger.Info("sweep lease held elsewhere", "key", a.cfg.Sweep.LeaseKey)
					fmt.Fprintln(out, "sweep skipped: lease held by another instance")
					return nil
				}
				defer func() {
					if err := lock.Release(ctx); err != nil {
						a.logger.Warn("failed to release sweep lease", "error", err)
					}
				}()
			}

			l, err := a.ledger(ctx)
			if err != nil {
				return err
			}
			defer l.Stop()

			n, err := l.ExpireDue(ctx)
			if err != nil {
				return err
			}
			return a.render(out, map[string]int{"expired": n}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "expired %d reservations\n", n)
				return err
			})
		},
	}
}
