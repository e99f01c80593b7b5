package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/warden/pkg/ban"
	"github.com/pario-ai/warden/pkg/config"
	"github.com/pario-ai/warden/pkg/models"
	"github.com/pario-ai/warden/pkg/store"
)

func newBanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ban",
		Short: "Manage user and IP bans",
	}

	cmd.AddCommand(
		newBanSetCmd(),
		newBanLiftCmd(),
		newBanStatusCmd(),
	)
	return cmd
}

func newBanSetCmd() *cobra.Command {
	var (
		configPath string
		user       string
		ip         string
		duration   time.Duration
		reason     string
		operator   string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Ban a user or IP (omit --duration for a permanent ban)",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, err := subjectFromFlags(user, ip)
			if err != nil {
				return err
			}

			engine, cleanup, err := openEngine(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			var d *time.Duration
			if duration > 0 {
				d = &duration
			}
			if err := engine.ManageBan(context.Background(), subject, ban.ActionBan, d, reason, operator); err != nil {
				return err
			}

			if d != nil {
				fmt.Printf("Banned %s %s until %s.\n", subject.Kind, subject.ID,
					time.Now().Add(*d).Format(time.RFC3339))
			} else {
				fmt.Printf("Banned %s %s permanently.\n", subject.Kind, subject.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to warden config file")
	cmd.Flags().StringVar(&user, "user", "", "user ID to ban")
	cmd.Flags().StringVar(&ip, "ip", "", "IP address to ban")
	cmd.Flags().DurationVar(&duration, "duration", 0, "ban duration (e.g. 24h); 0 means permanent")
	cmd.Flags().StringVar(&reason, "reason", "", "reason for the ban")
	cmd.Flags().StringVar(&operator, "operator", "", "operator issuing the ban")

	return cmd
}

func newBanLiftCmd() *cobra.Command {
	var (
		configPath string
		user       string
		ip         string
		operator   string
	)

	cmd := &cobra.Command{
		Use:   "lift",
		Short: "Lift an active ban on a user or IP",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, err := subjectFromFlags(user, ip)
			if err != nil {
				return err
			}

			engine, cleanup, err := openEngine(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := engine.ManageBan(context.Background(), subject, ban.ActionUnban, nil, "", operator); err != nil {
				return err
			}
			fmt.Printf("Lifted ban on %s %s.\n", subject.Kind, subject.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to warden config file")
	cmd.Flags().StringVar(&user, "user", "", "user ID to unban")
	cmd.Flags().StringVar(&ip, "ip", "", "IP address to unban")
	cmd.Flags().StringVar(&operator, "operator", "", "operator lifting the ban")

	return cmd
}

func newBanStatusCmd() *cobra.Command {
	var (
		configPath string
		user       string
		ip         string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the violation flag and ban state for a user or IP",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, err := subjectFromFlags(user, ip)
			if err != nil {
				return err
			}

			engine, cleanup, err := openEngine(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			flag, err := engine.FlagFor(context.Background(), subject)
			if err != nil {
				return err
			}
			if flag == nil {
				fmt.Printf("No violations recorded for %s %s.\n", subject.Kind, subject.ID)
				return nil
			}

			fmt.Printf("Subject:     %s %s\n", flag.Subject.Kind, flag.Subject.ID)
			fmt.Printf("Violations:  %d\n", flag.ViolationCount)
			fmt.Printf("Last at:     %s\n", flag.LastViolationAt.Format(time.RFC3339))
			if !flag.IsBanned {
				fmt.Println("Banned:      no")
				return nil
			}
			if flag.BanUntil == nil {
				fmt.Println("Banned:      yes (permanent)")
			} else {
				fmt.Printf("Banned:      yes, until %s\n", flag.BanUntil.Format(time.RFC3339))
			}
			if flag.BanReason != "" {
				fmt.Printf("Reason:      %s\n", flag.BanReason)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to warden config file")
	cmd.Flags().StringVar(&user, "user", "", "user ID to inspect")
	cmd.Flags().StringVar(&ip, "ip", "", "IP address to inspect")

	return cmd
}

func subjectFromFlags(user, ip string) (models.Subject, error) {
	switch {
	case user != "" && ip != "":
		return models.Subject{}, fmt.Errorf("pass either --user or --ip, not both")
	case user != "":
		return models.Subject{ID: user, Kind: models.SubjectUser}, nil
	case ip != "":
		return models.Subject{ID: ip, Kind: models.SubjectIP}, nil
	default:
		return models.Subject{}, fmt.Errorf("one of --user or --ip is required")
	}
}

func openEngine(configPath string) (*ban.Engine, func(), error) {
	st, cfg, cleanup, err := openStore(configPath)
	if err != nil {
		return nil, nil, err
	}
	return ban.New(st, cfg), cleanup, nil
}

func openStore(configPath string) (*store.Store, *config.Config, func(), error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}
	return st, cfg, func() { _ = st.Close() }, nil
}
