package app

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reviewbot/internal/casefiles"
	"reviewbot/internal/config"
	"reviewbot/internal/httpapi"
	"reviewbot/internal/httpx"
	"reviewbot/internal/integrations/anthropic"
	"reviewbot/internal/integrations/dify"
	"reviewbot/internal/integrations/redmine"
	"reviewbot/internal/monitor"
	"reviewbot/internal/notify"
	"reviewbot/internal/storage/sqlite"
)

func newServeCommand(rt *runtime) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Redmine monitor, state pruner and optional HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.serve(cmd.Context(), once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single polling cycle and exit")
	return cmd
}

func (rt *runtime) serve(ctx context.Context, once bool) error {
	cfg, log := rt.cfg, rt.log
	if err := cfg.ValidateMonitor(); err != nil {
		return err
	}
	applied := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Info("config loaded",
		zap.String("config_path", cfg.Path),
		zap.String("reviewer", cfg.Reviewer),
		zap.String("timezone", cfg.Timezone),
		zap.Int("fetch_limit", cfg.RedmineFetchLimit),
		zap.Duration("external_http_timeout", applied))

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}
	store := sqlite.NewStore(db)
	defer store.Close()
	log.Info("database initialized", zap.String("path", cfg.DBPath))

	tracker := redmine.New(redmine.Options{
		BaseURL: cfg.RedmineURL,
		APIKey:  cfg.RedmineAPIKey,
		Logger:  log.Named("redmine"),
	})
	notifier, err := newNotifier(ctx, cfg, log)
	if err != nil {
		return err
	}
	deps := monitor.Deps{
		Tracker:   tracker,
		Reviewer:  newReviewer(cfg, log),
		Announcer: notifier,
		Store:     store,
	}
	if cfg.CaseCleanupEnabled {
		deps.Cleaner = casefiles.NewCleaner(cfg.CaseRoot, log.Named("casefiles"))
	}
	svc := monitor.New(cfg.MonitorConfig(), deps, log.Named("monitor"))

	if once {
		result, err := svc.RunCycle(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(rt.stdout, monitor.FormatCycleSummary(result))
		return nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return svc.Run(groupCtx)
	})
	group.Go(func() error {
		return monitor.RunPruneScheduler(groupCtx, cfg.StatePruneSchedule, cfg.Location, cfg.StateMaxAge(), store, log.Named("prune"))
	})
	if cfg.HTTPAddr != "" {
		handler := httpapi.Router(&httpapi.Handler{
			Policy: cfg.QAPolicy(),
			DB:     store,
			Logger: log.Named("http"),
		})
		group.Go(func() error {
			return httpapi.Serve(groupCtx, cfg.HTTPAddr, handler, log.Named("http"))
		})
	}
	return group.Wait()
}

func newReviewer(cfg config.Config, log *zap.Logger) monitor.Reviewer {
	if cfg.Reviewer == "anthropic" {
		return anthropic.New(anthropic.Options{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.LLMModel,
			Logger: log.Named("anthropic"),
		})
	}
	return dify.New(dify.Options{
		URL:        cfg.DifyAPIURL,
		APIKey:     cfg.DifyAPIKey,
		LLM:        cfg.DifyLLM,
		User:       cfg.DifyUser,
		OutputKeys: cfg.DifyOutputKeys,
		Attempts:   cfg.DifyAttempts,
		Timeout:    cfg.DifyTimeout(),
		Logger:     log.Named("dify"),
	})
}

// newNotifier routes every card to the primary destinations and
// escalations to the secondary ones as well.
func newNotifier(ctx context.Context, cfg config.Config, log *zap.Logger) (*notify.Router, error) {
	router := notify.NewRouter(log.Named("notify"))
	if cfg.TeamsConfigured() {
		router.AddPrimary(notify.NewTeamsSink("teams", cfg.TeamsWebhookURL, httpx.Client()))
		if cfg.TeamsWebhookSecondaryURL != "" {
			router.AddSecondary(notify.NewTeamsSink("teams-secondary", cfg.TeamsWebhookSecondaryURL, httpx.Client()))
		}
	}
	if cfg.SlackConfigured() {
		opts := []slack.Option{slack.OptionHTTPClient(httpx.Client())}
		if cfg.SlackAPIURL != "" {
			opts = append(opts, slack.OptionAPIURL(cfg.SlackAPIURL))
		}
		api := slack.New(cfg.SlackBotToken, opts...)
		channels := notify.NewChannelResolver(api)

		primaryID, err := channels.Resolve(ctx, cfg.SlackChannelID)
		if err != nil {
			return nil, fmt.Errorf("slack_channel_id: %w", err)
		}
		router.AddPrimary(notify.NewSlackSink("slack", api, primaryID))
		if cfg.SlackSecondaryChannelID != "" {
			secondaryID, err := channels.Resolve(ctx, cfg.SlackSecondaryChannelID)
			if err != nil {
				return nil, fmt.Errorf("slack_secondary_channel_id: %w", err)
			}
			router.AddSecondary(notify.NewSlackSink("slack-secondary", api, secondaryID))
		}
	}
	primary, secondary := router.Destinations()
	log.Info("notification destinations", zap.Int("primary", primary), zap.Int("secondary", secondary))
	return router, nil
}
