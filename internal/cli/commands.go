// Package cli implements the one-shot subcommands: everything that talks
// to the backend without starting the TUI.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/prpo-labs/prpo/internal/api"
	"github.com/prpo-labs/prpo/internal/auth"
	"github.com/prpo-labs/prpo/internal/config"
)

// Options carries the root-level flags shared by every subcommand.
type Options struct {
	Server  string
	Profile string
}

func (o Options) resolve() (*config.Config, *api.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	baseURL := cfg.Server.BaseURL
	if strings.TrimSpace(o.Server) != "" {
		baseURL = o.Server
	}
	client := api.New(baseURL)
	if cfg.Server.TimeoutSeconds > 0 {
		client.HTTPClient.Timeout = time.Duration(cfg.Server.TimeoutSeconds) * time.Second
	}
	return cfg, client, nil
}

func (o Options) profile() string {
	p := strings.TrimSpace(o.Profile)
	if p == "" {
		return "default"
	}
	return p
}

func (o Options) token() (string, error) {
	token, err := auth.LoadToken(o.profile())
	if errors.Is(err, auth.ErrCredentialNotFound) {
		return "", errors.New("not logged in, run `prpo auth login` first")
	}
	return token, err
}

func NewAuthCmd(opts *Options) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the login session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Log in via device authorization",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := opts.resolve()
			if err != nil {
				return err
			}
			provider := auth.NewKeyring(client, opts.profile())
			err = provider.Login(cmd.Context(), func(uri, code string) {
				fmt.Printf("Visit %s and enter the code: %s\n", uri, code)
				fmt.Println("Waiting for approval...")
			})
			if err != nil {
				return err
			}
			fmt.Println("Logged in.")
			return nil
		},
	}

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Discard the stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := auth.DeleteToken(opts.profile()); err != nil && !errors.Is(err, auth.ErrCredentialNotFound) {
				return err
			}
			fmt.Println("Logged out.")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a credential is stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := auth.LoadToken(opts.profile())
			if errors.Is(err, auth.ErrCredentialNotFound) {
				fmt.Printf("Profile %q: logged out\n", opts.profile())
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("Profile %q: logged in\n", opts.profile())
			return nil
		},
	}

	authCmd.AddCommand(loginCmd, logoutCmd, statusCmd)
	return authCmd
}

func NewChatsCmd(opts *Options) *cobra.Command {
	chatsCmd := &cobra.Command{
		Use:   "chats",
		Short: "Manage chats from the command line",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatsList(cmd.Context(), opts, 0, false)
		},
	}

	var limit int
	var all bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List chats, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatsList(cmd.Context(), opts, limit, all)
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 0, "Page size (defaults to the configured one)")
	listCmd.Flags().BoolVar(&all, "all", false, "Follow the cursor until every page is fetched")

	var yes bool
	deleteCmd := &cobra.Command{
		Use:   "delete <chat-id>",
		Short: "Delete a chat and all its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("deletion is permanent, re-run with --yes to confirm")
			}
			_, client, err := opts.resolve()
			if err != nil {
				return err
			}
			token, err := opts.token()
			if err != nil {
				return err
			}
			if err := client.DeleteChat(cmd.Context(), token, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted chat %s\n", args[0])
			return nil
		},
	}
	deleteCmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation")

	showCmd := &cobra.Command{
		Use:   "show <chat-id>",
		Short: "Print a chat transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := opts.resolve()
			if err != nil {
				return err
			}
			token, err := opts.token()
			if err != nil {
				return err
			}
			detail, err := client.GetChat(cmd.Context(), token, args[0])
			if err != nil {
				return err
			}
			printTranscript(detail)
			return nil
		},
	}

	chatsCmd.AddCommand(listCmd, deleteCmd, showCmd)
	return chatsCmd
}

func runChatsList(ctx context.Context, opts *Options, limit int, all bool) error {
	cfg, client, err := opts.resolve()
	if err != nil {
		return err
	}
	token, err := opts.token()
	if err != nil {
		return err
	}
	if limit <= 0 {
		limit = cfg.Chats.PageSize
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tUPDATED")

	cursor := ""
	total := 0
	for {
		page, err := client.ListChats(ctx, token, limit, cursor)
		if err != nil {
			return err
		}
		for _, item := range page.Items {
			title := strings.TrimSpace(item.Title)
			if title == "" {
				title = "New chat"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", item.ID, title, formatTimestamp(item.UpdatedAt))
			total++
		}
		cursor = page.NextCursor
		if !all || cursor == "" {
			break
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if total == 0 {
		fmt.Println("No chats yet.")
	} else if cursor != "" {
		fmt.Println("More chats available, use --all to fetch every page.")
	}
	return nil
}

func printTranscript(detail api.ChatDetail) {
	title := strings.TrimSpace(detail.Title)
	if title == "" {
		title = "New chat"
	}
	fmt.Printf("# %s (%s)\n\n", title, detail.ID)
	for _, msg := range detail.Messages {
		label := strings.ToUpper(msg.Role)
		if strings.TrimSpace(msg.ModelID) != "" {
			label += " [" + msg.ModelID + "]"
		}
		fmt.Printf("%s:\n%s\n\n", label, strings.TrimSpace(msg.Content))
	}
}

func NewUsageCmd(opts *Options) *cobra.Command {
	var format, from, to string
	usageCmd := &cobra.Command{
		Use:   "usage",
		Short: "Show aggregated usage and cost",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := opts.resolve()
			if err != nil {
				return err
			}
			token, err := opts.token()
			if err != nil {
				return err
			}
			summary, err := client.Usage(cmd.Context(), token, from, to)
			if err != nil {
				return err
			}

			switch strings.ToLower(strings.TrimSpace(format)) {
			case "", "table":
				return printUsageTable(summary)
			case "json":
				payload, err := json.MarshalIndent(summary, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(payload))
				return nil
			case "yaml":
				payload, err := yaml.Marshal(summary)
				if err != nil {
					return err
				}
				fmt.Print(string(payload))
				return nil
			default:
				return fmt.Errorf("unknown format %q (table, json, yaml)", format)
			}
		},
	}
	usageCmd.Flags().StringVar(&format, "format", "table", "Output format: table, json or yaml")
	usageCmd.Flags().StringVar(&from, "from", "", "Start of the reporting window (RFC 3339)")
	usageCmd.Flags().StringVar(&to, "to", "", "End of the reporting window (RFC 3339)")
	return usageCmd
}

func printUsageTable(summary api.UsageSummary) error {
	currency := summary.Currency
	if currency == "" {
		currency = "USD"
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 2, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tREQUESTS\tTOKENS\tCOST")
	for _, p := range summary.ByProvider {
		fmt.Fprintf(w, "%s\t%d\t%d\t%.4f %s\n", p.ProviderID, p.Requests, p.Tokens, p.Cost, currency)
	}
	fmt.Fprintf(w, "total\t%d\t%d\t%.4f %s\n", summary.TotalRequests, summary.TotalTokens, summary.TotalCost, currency)
	if err := w.Flush(); err != nil {
		return err
	}

	for _, c := range summary.Credits {
		fmt.Printf("Credits %s: %.2f of %.2f used\n", c.ProviderID, c.UsedCredits, c.TotalCredits)
	}
	return nil
}

// exportBundle is the on-disk transcript format.
type exportBundle struct {
	Version    int             `json:"version" yaml:"version"`
	ExportedAt string          `json:"exported_at" yaml:"exported_at"`
	Chat       exportChat      `json:"chat" yaml:"chat"`
	Messages   []exportMessage `json:"messages" yaml:"messages"`
}

type exportChat struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
}

type exportMessage struct {
	Role      string `json:"role" yaml:"role"`
	Content   string `json:"content" yaml:"content"`
	ModelID   string `json:"model,omitempty" yaml:"model,omitempty"`
	CreatedAt string `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

func NewExportCmd(opts *Options) *cobra.Command {
	var outPath string
	var format string

	exportCmd := &cobra.Command{
		Use:   "export <chat-id>",
		Short: "Export a chat transcript to YAML or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := opts.resolve()
			if err != nil {
				return err
			}
			token, err := opts.token()
			if err != nil {
				return err
			}
			detail, err := client.GetChat(cmd.Context(), token, args[0])
			if err != nil {
				return err
			}

			bundle := exportBundle{
				Version:    1,
				ExportedAt: time.Now().UTC().Format(time.RFC3339),
				Chat:       exportChat{ID: detail.ID, Title: detail.Title},
			}
			for _, msg := range detail.Messages {
				out := exportMessage{
					Role:    msg.Role,
					Content: msg.Content,
					ModelID: msg.ModelID,
				}
				if !msg.CreatedAt.IsZero() {
					out.CreatedAt = msg.CreatedAt.UTC().Format(time.RFC3339)
				}
				bundle.Messages = append(bundle.Messages, out)
			}

			format = strings.ToLower(strings.TrimSpace(format))
			var payload []byte
			switch format {
			case "", "yaml":
				format = "yaml"
				payload, err = yaml.Marshal(bundle)
			case "json":
				payload, err = json.MarshalIndent(bundle, "", "  ")
			default:
				return fmt.Errorf("unknown format %q (yaml, json)", format)
			}
			if err != nil {
				return err
			}

			if outPath == "" {
				outPath = fmt.Sprintf("prpo-chat-%s.%s", detail.ID, format)
			}
			if err := os.WriteFile(outPath, payload, 0644); err != nil {
				return err
			}
			fmt.Printf("Exported %d message(s) to %s\n", len(bundle.Messages), outPath)
			return nil
		},
	}

	exportCmd.Flags().StringVar(&outPath, "out", "", "Output file path")
	exportCmd.Flags().StringVar(&format, "format", "yaml", "Export format: yaml or json")
	return exportCmd
}

func NewConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			fmt.Printf("# %s\n", config.GetConfigPath())
			return toml.NewEncoder(os.Stdout).Encode(cfg)
		},
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
