package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"abm-playbook-workers/internal/common/config"
	"abm-playbook-workers/internal/common/database"
	"abm-playbook-workers/internal/common/logger"
	"abm-playbook-workers/internal/repository"

	"github.com/spf13/cobra"
)

type historyFlags struct {
	configPath string
	redisAddr  string
	key        string
}

func HistoryCmd() *cobra.Command {
	var f historyFlags
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List or prune the saved playbook history",
	}
	cmd.PersistentFlags().StringVar(&f.configPath, "config", "", "config file (defaults to configs/config.yaml)")
	cmd.PersistentFlags().StringVar(&f.redisAddr, "redis", "", "redis address, overrides the config")
	cmd.PersistentFlags().StringVar(&f.key, "key", "", "history list key, overrides the config")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Show saved playbooks, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withHistory(f, func(store *repository.RedisStore) error {
					return listHistory(cmd.Context(), cmd.OutOrStdout(), store)
				})
			},
		},
		&cobra.Command{
			Use:   "remove <index>",
			Short: "Remove the playbook at a history position (0 is newest)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				index, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("index must be a number: %w", err)
				}
				return withHistory(f, func(store *repository.RedisStore) error {
					if err := store.Remove(cmd.Context(), index); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Removed", index)
					return nil
				})
			},
		},
	)
	return cmd
}

func loadConfig(f historyFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.configPath != "" {
		cfg, err = config.LoadFromFile(f.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		if f.redisAddr == "" {
			return nil, err
		}
		// an explicit address is enough to reach the history
		cfg = &config.Config{}
		cfg.Database.Redis.HistoryKey = "abm:playbooks"
		cfg.Playbook.HistoryLimit = 10
	}
	if f.redisAddr != "" {
		cfg.Database.Redis.Address = f.redisAddr
	}
	if f.key != "" {
		cfg.Database.Redis.HistoryKey = f.key
	}
	return cfg, nil
}

func withHistory(f historyFlags, fn func(store *repository.RedisStore) error) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	rdb, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	return fn(repository.NewRedisStore(rdb.Client, cfg.Database.Redis.HistoryKey, cfg.Playbook.HistoryLimit, logger.NewNoOpLogger()))
}

func listHistory(ctx context.Context, out io.Writer, store *repository.RedisStore) error {
	playbooks, err := store.List(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tPLAYBOOK\tGENERATED\tREPORTS\tCONTACTS\tEMAILS")
	for i, pb := range playbooks {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\n",
			i,
			pb.PlaybookID,
			pb.GenerationDate.UTC().Format("2006-01-02 15:04"),
			len(pb.Reports),
			len(pb.EnrichedContacts),
			pb.EmailCount(),
		)
	}
	return tw.Flush()
}
