package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"github.com/zulandar/gepeto/internal/chat"
	"github.com/zulandar/gepeto/internal/chat/discord"
	slackadapter "github.com/zulandar/gepeto/internal/chat/slack"
	"github.com/zulandar/gepeto/internal/config"
	"github.com/zulandar/gepeto/internal/conversation"
	"github.com/zulandar/gepeto/internal/dashboard"
	"github.com/zulandar/gepeto/internal/graph"
	"github.com/zulandar/gepeto/internal/knowledge"
	"github.com/zulandar/gepeto/internal/llm"
	"github.com/zulandar/gepeto/internal/logging"
	"github.com/zulandar/gepeto/internal/prompt"
	"github.com/zulandar/gepeto/internal/turn"
	"gorm.io/gorm"
)

func newListenCmd() *cobra.Command {
	var platform, player string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Answer chat messages until interrupted",
		Long:  "Connects to the configured chat platform and answers every message that starts with the trigger.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if platform != "" {
				if err := cfg.SetPlatform(platform); err != nil {
					return err
				}
			}
			return runListen(cmd, cfg, player)
		},
	}

	cmd.Flags().StringVarP(&platform, "platform", "p", "", "override chat.platform (console, discord, slack)")
	cmd.Flags().StringVar(&player, "player", "", "player name used by the console platform")
	return cmd
}

func runListen(cmd *cobra.Command, cfg *config.Config, player string) error {
	if err := cfg.RequireLLM(); err != nil {
		return err
	}
	log := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Pretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := buildApp(ctx, cfg, appIO{In: cmd.InOrStdin(), Out: cmd.OutOrStdout(), Player: player}, log)
	if err != nil {
		return err
	}
	return a.run(ctx, cancel)
}

// appIO carries the console platform's streams.
type appIO struct {
	In     io.Reader
	Out    io.Writer
	Player string
}

// app is a fully wired listener.
type app struct {
	db     *gorm.DB
	daemon *turn.Daemon
	cfg    *config.Config
	log    zerolog.Logger
}

// buildApp wires storage, tools, the model, the graph, the chat adapter,
// the controller and the daemon.
func buildApp(ctx context.Context, cfg *config.Config, streams appIO, log zerolog.Logger) (*app, error) {
	gormDB, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	store, err := conversation.NewStore(conversation.StoreOpts{DB: gormDB})
	if err != nil {
		return nil, err
	}

	registry, err := buildRegistry(cfg, gormDB, log)
	if err != nil {
		return nil, err
	}

	prompts, err := prompt.Load(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}

	model, err := llm.New(ctx, llm.ClientOpts{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	g, err := graph.New(graph.Opts{
		Classifier:   model,
		ToolCaller:   model,
		Generator:    model,
		Tools:        registry,
		History:      store,
		Prompts:      prompts,
		HistoryLimit: cfg.MessageHistoryLimit,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}

	adapter, err := createAdapter(cfg, streams, log)
	if err != nil {
		return nil, err
	}

	ctrl, err := turn.NewController(turn.ControllerOpts{
		Graph:        g,
		History:      store,
		Sink:         adapter,
		Trigger:      cfg.Trigger,
		SpeakerLabel: cfg.SpeakerLabel,
		MaxSteps:     cfg.MaxSteps,
		Timeout:      cfg.TurnTimeout,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}

	daemon, err := turn.NewDaemon(turn.DaemonOpts{Adapter: adapter, Handler: ctrl, Logger: log})
	if err != nil {
		return nil, err
	}
	return &app{db: gormDB, daemon: daemon, cfg: cfg, log: log}, nil
}

// buildRegistry registers the wiki and recipe tools.
func buildRegistry(cfg *config.Config, gormDB *gorm.DB, log zerolog.Logger) (*knowledge.Registry, error) {
	wiki, err := knowledge.NewWikiSearch(knowledge.WikiOpts{
		BaseURL:   cfg.Wiki.BaseURL,
		Timeout:   cfg.Wiki.Timeout,
		MaxChars:  cfg.Wiki.MaxChars,
		SkipChars: cfg.Wiki.SkipChars,
	})
	if err != nil {
		return nil, err
	}
	recipes, err := knowledge.NewRecipeSearch(knowledge.RecipeOpts{DB: gormDB})
	if err != nil {
		return nil, err
	}
	return knowledge.NewRegistry(knowledge.RegistryOpts{
		Tools:  []knowledge.Tool{wiki, recipes},
		Logger: log,
	})
}

// run starts the optional dashboard and blocks in the daemon until ctx is
// cancelled or the chat source ends.
func (a *app) run(ctx context.Context, cancel context.CancelFunc) error {
	var wg conc.WaitGroup
	if a.cfg.Dashboard.Port > 0 {
		wg.Go(func() {
			err := dashboard.Start(ctx, dashboard.StartOpts{DB: a.db, Port: a.cfg.Dashboard.Port, Logger: a.log})
			if err != nil {
				a.log.Error().Err(err).Msg("dashboard stopped")
			}
		})
	}

	err := a.daemon.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

// createAdapter builds a platform adapter from the config.
func createAdapter(cfg *config.Config, streams appIO, log zerolog.Logger) (chat.Adapter, error) {
	switch cfg.Chat.Platform {
	case config.PlatformConsole:
		return chat.NewConsole(chat.ConsoleOpts{
			In:     streams.In,
			Out:    streams.Out,
			Player: chat.Player{ID: streams.Player, Name: streams.Player},
		}), nil
	case config.PlatformDiscord:
		return discord.New(discord.AdapterOpts{
			BotToken:       cfg.Chat.Discord.BotToken,
			ChannelID:      cfg.Chat.Channel,
			AcceptWebhooks: cfg.Chat.Discord.AcceptWebhooks,
			Logger:         log,
		})
	case config.PlatformSlack:
		return slackadapter.New(slackadapter.AdapterOpts{
			AppToken:     cfg.Chat.Slack.AppToken,
			BotToken:     cfg.Chat.Slack.BotToken,
			ChannelID:    cfg.Chat.Channel,
			MentionAlias: cfg.Trigger,
			Logger:       log,
		})
	default:
		return nil, fmt.Errorf("listen: unsupported chat platform %q", cfg.Chat.Platform)
	}
}
