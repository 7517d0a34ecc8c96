package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/acrylicworks/api/internal/ads"
	"github.com/acrylicworks/api/internal/platform/observability"
)

// exitNotImplemented lets scripts tell a pending integration apart from bad input.
const exitNotImplemented = 3

func main() {
	logger, err := observability.NewLogger(os.Getenv("API_LOG_LEVEL"), "local")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = newRootCommand(logger.Named("adsctl")).ExecuteContext(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ads.ErrNotImplemented):
		logger.Warn("platform integration pending", zap.Error(err))
		os.Exit(exitNotImplemented)
	default:
		logger.Error("adsctl failed", zap.Error(err))
		os.Exit(1)
	}
}

func newRootCommand(logger *zap.Logger) *cobra.Command {
	var platform string
	root := &cobra.Command{
		Use:           "adsctl",
		Short:         "manage storefront ad campaigns on meta and google",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&platform, "platform", "p", "", "ads platform (meta|google)")

	clientFor := func() (ads.Client, error) {
		p, err := ads.ParsePlatform(platform)
		if err != nil {
			return nil, err
		}
		return ads.NewClient(p)
	}

	root.AddCommand(
		listCommand(logger, clientFor),
		createCommand(logger, clientFor),
		pauseCommand(logger, clientFor),
		syncCommand(logger, clientFor),
	)
	return root
}

func listCommand(logger *zap.Logger, clientFor func() (ads.Client, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list campaigns on the platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := clientFor()
			if err != nil {
				return err
			}
			campaigns, err := client.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range campaigns {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d %s\n", c.Name, c.Objective, c.DailyBudget, c.Currency)
			}
			logger.Info("campaigns listed", zap.String("platform", string(client.Platform())), zap.Int("count", len(campaigns)))
			return nil
		},
	}
}

func createCommand(logger *zap.Logger, clientFor func() (ads.Client, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "create [campaign-file]",
		Short: "create every campaign in the file that targets the platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFor()
			if err != nil {
				return err
			}
			file, err := ads.LoadFile(args[0])
			if err != nil {
				return err
			}
			campaigns := file.ForPlatform(client.Platform())
			if len(campaigns) == 0 {
				return fmt.Errorf("%w: no campaigns for %s in %s", ads.ErrInvalidCampaign, client.Platform(), args[0])
			}
			for _, c := range campaigns {
				id, err := client.Create(cmd.Context(), c)
				if err != nil {
					return err
				}
				logger.Info("campaign created", zap.String("name", c.Name), zap.String("id", id))
			}
			return nil
		},
	}
}

func pauseCommand(logger *zap.Logger, clientFor func() (ads.Client, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "pause [campaign-id]",
		Short: "pause a running campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFor()
			if err != nil {
				return err
			}
			if err := client.Pause(cmd.Context(), args[0]); err != nil {
				return err
			}
			logger.Info("campaign paused", zap.String("id", args[0]))
			return nil
		},
	}
}

func syncCommand(logger *zap.Logger, clientFor func() (ads.Client, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [campaign-file]",
		Short: "reconcile platform campaigns with the file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFor()
			if err != nil {
				return err
			}
			file, err := ads.LoadFile(args[0])
			if err != nil {
				return err
			}
			campaigns := file.ForPlatform(client.Platform())
			if err := client.Sync(cmd.Context(), campaigns); err != nil {
				return err
			}
			logger.Info("campaigns synced", zap.String("platform", string(client.Platform())), zap.Int("count", len(campaigns)))
			return nil
		},
	}
}
