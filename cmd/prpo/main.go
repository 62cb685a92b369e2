package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/prpo-labs/prpo/internal/api"
	"github.com/prpo-labs/prpo/internal/auth"
	prpocli "github.com/prpo-labs/prpo/internal/cli"
	"github.com/prpo-labs/prpo/internal/config"
	"github.com/prpo-labs/prpo/internal/state"
	"github.com/prpo-labs/prpo/internal/tui"
)

type runtimeDeps struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config
	db     *state.DB
	client *api.Client
	authp  *auth.Keyring
}

func (r *runtimeDeps) Close() {
	if r == nil {
		return
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.db != nil {
		_ = r.db.Close()
	}
}

func restoreTerminalState() {
	fmt.Fprint(os.Stderr, "\x1b[?25h\x1b[0m")
}

func bootstrapRuntime(opts *prpocli.Options) (*runtimeDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	rt := &runtimeDeps{cfg: cfg}
	rt.ctx, rt.cancel = context.WithCancel(context.Background())

	db, err := state.Connect(state.DefaultPath())
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.db = db

	baseURL := cfg.Server.BaseURL
	if strings.TrimSpace(opts.Server) != "" {
		baseURL = opts.Server
	}
	rt.client = api.New(baseURL)
	if cfg.Server.TimeoutSeconds > 0 {
		rt.client.HTTPClient.Timeout = time.Duration(cfg.Server.TimeoutSeconds) * time.Second
	}

	profile := strings.TrimSpace(opts.Profile)
	if profile == "" {
		profile = cfg.Defaults.Profile
	}
	rt.authp = auth.NewKeyring(rt.client, profile)

	return rt, nil
}

func main() {
	opts := &prpocli.Options{}
	var chatID string

	rootCmd := &cobra.Command{
		Use:   "prpo",
		Short: "Terminal client for the PRPO chat service",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrapRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			profile := strings.TrimSpace(opts.Profile)
			if profile == "" {
				profile = rt.cfg.Defaults.Profile
			}

			initialRoute := strings.TrimSpace(chatID)
			if initialRoute == "" {
				// Reopen the chat from the previous run.
				initialRoute, _ = rt.db.GetLastRoute(rt.ctx, profile)
			}

			app := tui.NewAppModel(rt.cfg, rt.db, rt.client, rt.authp, profile, initialRoute)
			p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(rt.ctx))

			err = config.Watch(rt.ctx, config.GetConfigPath(), func(cfg *config.Config) {
				p.Send(tui.ConfigReloadedMsg{Cfg: cfg})
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: config watcher disabled: %v\n", err)
			}

			_, err = p.Run()
			return err
		},
	}

	rootCmd.Flags().StringVar(&chatID, "chat", "", "Open a specific chat on launch")
	rootCmd.PersistentFlags().StringVar(&opts.Server, "server", "", "Override the configured server base URL")
	rootCmd.PersistentFlags().StringVar(&opts.Profile, "profile", "", "Credential profile to use")

	rootCmd.AddCommand(
		prpocli.NewAuthCmd(opts),
		prpocli.NewChatsCmd(opts),
		prpocli.NewUsageCmd(opts),
		prpocli.NewExportCmd(opts),
		prpocli.NewConfigCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		restoreTerminalState()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	restoreTerminalState()
}
