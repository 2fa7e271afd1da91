package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/logsync/internal/config"
	"github.com/mschirtzinger/logsync/internal/ui"
)

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		GroupID: "maint",
		Short:   "Create or inspect the configuration",
	}
	cmd.AddCommand(newConfigInitCmd(opts), newConfigShowCmd(opts))
	return cmd
}

func newConfigInitCmd(opts *globalOptions) *cobra.Command {
	var (
		format       string
		force        bool
		defaultsOnly bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a config file interactively",
		Long: `Ask for the source, state store and users and write a config file
(logsync.yaml or logsync.toml, or the --config path).

Credentials are not stored in the config file. Put them in the environment
or a .env file:
  GITHUB_REPO_OWNER, GITHUB_REPO_NAME, GITHUB_TOKEN
  TRELLO_API_KEY, TRELLO_API_TOKEN`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.ParseFormat(format)
			if err != nil {
				return err
			}

			path := opts.configFile
			if path == "" {
				path = "logsync." + string(f)
				if opts.dir != "" {
					path = filepath.Join(opts.dir, path)
				}
			}
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to replace it)", path)
				}
			}

			cfg := config.DefaultConfig()
			if !defaultsOnly {
				accessible := os.Getenv("ACCESSIBLE") != "" || !ui.IsTerminal(os.Stdin)
				cfg, err = config.Prompt(cfg, config.PromptOptions{Accessible: accessible})
				if err != nil {
					return err
				}
			}

			if err := cfg.WriteFile(path, force); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Wrote %s\n", ui.RenderPass("✓"), path)
			cfg.Secrets = config.SecretsFromEnv()
			if missing := cfg.RequireSecrets(true); missing != nil {
				fmt.Fprintf(out, "%s %v\n", ui.RenderWarn("⚠"), missing)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Config format: yaml or toml")
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing config file")
	cmd.Flags().BoolVar(&defaultsOnly, "defaults", false, "Write the defaults without prompting")
	return cmd
}

func newConfigShowCmd(opts *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, the config file and LOGSYNC_
environment overrides are merged. Credentials are shown as set or unset,
never their values.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.ParseFormat(format)
			if err != nil {
				return err
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n", cfg.Path())
			return cfg.Show(out, f)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: yaml or toml")
	return cmd
}
