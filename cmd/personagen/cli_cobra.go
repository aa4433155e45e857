package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotsetgreg/personagen/pkg/config"
	"github.com/dotsetgreg/personagen/pkg/logger"
	"github.com/dotsetgreg/personagen/pkg/persona"
	"github.com/dotsetgreg/personagen/pkg/providers"
	"github.com/dotsetgreg/personagen/pkg/service"
	"github.com/dotsetgreg/personagen/pkg/store"
)

func executeCLI() error {
	root := buildRootCommand()
	if err := root.Execute(); err != nil {
		return err
	}
	return nil
}

func buildRootCommand() *cobra.Command {
	var (
		showVersion bool
		debug       bool
	)

	root := &cobra.Command{
		Use:   "personagen",
		Short: "Persona synthesis engine with versioned, append-only storage",
		Long: strings.TrimSpace(`personagen turns connected-account data into a canonical persona.

Use CLI commands to onboard, synthesize personas from account exports,
inspect and patch the versioned history, roll back, and export for
downstream AI-context consumers.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				logger.SetLevel(logger.DEBUG)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")
	root.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	root.AddCommand(newOnboardCommand())
	root.AddCommand(newGenerateCommand())
	root.AddCommand(newShowCommand())
	root.AddCommand(newHistoryCommand())
	root.AddCommand(newPatchCommand())
	root.AddCommand(newRollbackCommand())
	root.AddCommand(newExportCommand())
	root.AddCommand(newRefreshCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newVersionCommand())

	return root
}

// openService loads config, opens the configured store backend and builds
// the synthesis service. The caller must Close it.
func openService(withWorker bool) (*service.Service, *config.Config, error) {
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	var st store.Store
	switch cfg.Storage.Backend {
	case "memory":
		st = store.NewMemoryStore()
	case "", "sqlite":
		st, err = store.NewSQLiteStore(cfg.StoragePath())
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	var client providers.Client
	if cfg.GetAPIKey() != "" {
		client, err = providers.NewChatClient(providers.Options{
			APIBase: cfg.GetAPIBase(),
			APIKey:  cfg.GetAPIKey(),
			Model:   cfg.Provider.Model,
			Proxy:   cfg.Provider.Proxy,
		})
		if err != nil {
			_ = st.Close()
			return nil, nil, err
		}
	}

	svc, err := service.New(service.Options{
		Store:              st,
		Client:             client,
		MaxRetries:         cfg.Generation.MaxRetries,
		Temperature:        cfg.Generation.Temperature,
		RefreshEnabled:     withWorker && cfg.Refresh.Enabled,
		RefreshSchedule:    cfg.Refresh.Schedule,
		RefreshConcurrency: cfg.Refresh.Concurrency,
	})
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return svc, cfg, nil
}

func newOnboardCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "onboard",
		Short:   "Initialize ~/.personagen config",
		Long:    "Create the default configuration file for a new personagen installation.",
		Example: "  personagen onboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := getConfigPath()

			if _, err := os.Stat(configPath); err == nil {
				fmt.Printf("Config already exists at %s\n", configPath)
				fmt.Print("Overwrite? (y/n): ")
				reader := bufio.NewReader(os.Stdin)
				response, readErr := reader.ReadString('\n')
				if readErr != nil {
					fmt.Println("Aborted.")
					return nil
				}
				response = strings.ToLower(strings.TrimSpace(response))
				if response != "y" && response != "yes" {
					fmt.Println("Aborted.")
					return nil
				}
			}

			cfg := config.DefaultConfig()
			if err := config.SaveConfig(configPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Printf("Config written to %s\n", configPath)
			fmt.Println("Set PERSONAGEN_PROVIDER_API_KEY (or edit the config) to enable remote generation.")
			return nil
		},
	}
}

func newGenerateCommand() *cobra.Command {
	var (
		accountsFile string
		user         string
		email        string
		displayName  string
		focusAreas   []string
		instructions string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Synthesize a persona from an accounts export and store it",
		Long: "Normalize a raw connected-accounts JSON export, synthesize a persona " +
			"(remote model with rule-based fallback) and append it as a new version.",
		Example: strings.Join([]string{
			"  personagen generate --user u123 --accounts accounts.json",
			"  personagen generate --user u123 --accounts accounts.json --focus devops --focus \"career growth\"",
			"  personagen generate --email dana@example.com --accounts accounts.json --name \"Dana Reyes\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity := store.Identity{ExternalID: user, Email: email}
			if identity.Key() == "" {
				return fmt.Errorf("--user or --email is required")
			}
			raw, err := readAccountsFile(accountsFile)
			if err != nil {
				return err
			}

			svc, _, err := openService(false)
			if err != nil {
				return err
			}
			defer svc.Close()

			rec, err := svc.Synthesize(cmd.Context(), service.SynthesizeRequest{
				Identity:           identity,
				RawAccounts:        raw,
				FocusAreas:         focusAreas,
				CustomInstructions: instructions,
				DisplayName:        displayName,
			})
			if err != nil {
				return err
			}
			return printRecord(rec)
		},
	}

	cmd.Flags().StringVarP(&accountsFile, "accounts", "a", "", "Path to the raw accounts JSON export (required)")
	cmd.Flags().StringVarP(&user, "user", "u", "", "External user id")
	cmd.Flags().StringVarP(&email, "email", "e", "", "User email (alternative identity)")
	cmd.Flags().StringVarP(&displayName, "name", "n", "", "Explicit display name; always overrides the generated name")
	cmd.Flags().StringArrayVarP(&focusAreas, "focus", "f", nil, "Focus area constraining goal derivation (repeatable)")
	cmd.Flags().StringVarP(&instructions, "instructions", "i", "", "Free-form instructions for generation")
	_ = cmd.MarkFlagRequired("accounts")

	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "show <user-or-persona-id>",
		Short:   "Show the current persona record",
		Example: "  personagen show u123",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := openService(false)
			if err != nil {
				return err
			}
			defer svc.Close()

			rec, err := resolveRecord(cmd.Context(), svc, args[0])
			if err != nil {
				return err
			}
			return printRecord(rec)
		},
	}
}

func newHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "history <user>",
		Short:   "List all persona versions for a user, newest first",
		Example: "  personagen history u123",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := openService(false)
			if err != nil {
				return err
			}
			defer svc.Close()

			history, err := svc.GetHistory(cmd.Context(), store.IdentityFromRef(args[0]))
			if err != nil {
				return err
			}
			for _, rec := range history {
				fmt.Printf("v%d  %s  %s\n", rec.Version,
					rec.LastModified.Format("2006-01-02 15:04:05"), rec.Persona.Name)
			}
			return nil
		},
	}
}

func newPatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "patch <user-or-persona-id> <field-path> <value>",
		Short: "Patch one field and append the result as a new version",
		Long: "Apply a dot-separated field mutation to the latest snapshot. The value is " +
			"parsed as JSON, falling back to a plain string.",
		Example: strings.Join([]string{
			"  personagen patch u123 style.formality formal",
			"  personagen patch u123 interests '[\"Go\",\"SQLite\"]'",
			"  personagen patch u123 customData.editor.theme dark",
		}, "\n"),
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := openService(false)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.UpdateField(cmd.Context(), args[0], args[1], parseCLIValue(args[2]))
			if err != nil {
				return err
			}
			fmt.Printf("Appended %s v%d\n", res.ID, res.Version)
			return nil
		},
	}
}

func newRollbackCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "rollback <persona-id> <version>",
		Short:   "Append a new version whose content equals an earlier snapshot",
		Example: "  personagen rollback per-9b2f 3",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			toVersion, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("version must be an integer: %w", err)
			}

			svc, _, err := openService(false)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.Rollback(cmd.Context(), args[0], toVersion)
			if err != nil {
				return err
			}
			fmt.Printf("Rolled back to v%d as new version v%d\n", toVersion, res.Version)
			return nil
		},
	}
}

func newExportCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export <user-or-persona-id>",
		Short: "Export the current persona (json, yaml or llm_prompt)",
		Example: strings.Join([]string{
			"  personagen export u123",
			"  personagen export u123 --format llm_prompt",
		}, "\n"),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := openService(false)
			if err != nil {
				return err
			}
			defer svc.Close()

			out, err := svc.Export(cmd.Context(), args[0], format)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", persona.FormatJSON, "Export format: json, yaml, llm_prompt")
	return cmd
}

func newRefreshCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "refresh [user]",
		Short: "Re-synthesize personas from retained account bundles",
		Example: strings.Join([]string{
			"  personagen refresh u123",
			"  personagen refresh --all",
		}, "\n"),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := openService(false)
			if err != nil {
				return err
			}
			defer svc.Close()

			if all {
				count, err := svc.RefreshAll(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("Refreshed %d persona(s)\n", count)
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("a user argument or --all is required")
			}
			rec, err := svc.Refresh(cmd.Context(), store.IdentityFromRef(args[0]))
			if err != nil {
				return err
			}
			return printRecord(rec)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Refresh every identity with a retained bundle")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration and storage status",
		Example: "  personagen status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(getConfigPath())
			if err != nil {
				return err
			}
			fmt.Printf("Config:    %s\n", getConfigPath())
			fmt.Printf("Storage:   %s (%s)\n", cfg.Storage.Backend, cfg.StoragePath())
			fmt.Printf("Model:     %s\n", cfg.Provider.Model)
			if cfg.GetAPIKey() == "" {
				fmt.Println("Provider:  no API key, rule-based generation only")
			} else {
				fmt.Printf("Provider:  %s\n", cfg.GetAPIBase())
			}
			if cfg.Refresh.Enabled {
				fmt.Printf("Refresh:   %s (concurrency %d)\n", cfg.Refresh.Schedule, cfg.Refresh.Concurrency)
			} else {
				fmt.Println("Refresh:   disabled")
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  personagen version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion()
			return nil
		},
	}
}

func resolveRecord(ctx context.Context, svc *service.Service, ref string) (persona.Record, error) {
	rec, err := svc.GetCurrent(ctx, store.IdentityFromRef(ref))
	if err == nil {
		return rec, nil
	}
	return svc.GetByID(ctx, ref)
}

func readAccountsFile(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}
	return raw, nil
}

// parseCLIValue accepts JSON values and falls back to a bare string so
// `patch u123 name Dana` works without quoting.
func parseCLIValue(arg string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(arg), &v); err == nil {
		return v
	}
	return arg
}

func printRecord(rec persona.Record) error {
	out, err := persona.Export(rec, persona.FormatJSON)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}
