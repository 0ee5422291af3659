package cli

import (
	"bufio"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/mail2tasks/internal/credential"
	"github.com/nhle/mail2tasks/internal/model"
	"github.com/nhle/mail2tasks/internal/theme"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the config file",
		Long: `Write the effective configuration (defaults, .env and environment
overrides) to the config file. Secrets are never written; store them with
"mail2tasks credential set".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(a.configPath); err == nil && !force {
				return fmt.Errorf("config file %s already exists, use --force to overwrite", a.configPath)
			}
			if err := model.SaveConfig(a.configPath, a.cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), theme.SuccessStyle.Render("Wrote "+a.configPath))
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}

func newCredentialCmd(_ *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Store secrets in the system keyring",
		Long: fmt.Sprintf(`Store secrets in the system keyring. Known keys: %s.

Values from the config file or the environment take precedence over the
keyring.`, strings.Join(credential.KnownKeys, ", ")),
	}

	setCmd := &cobra.Command{
		Use:   "set KEY [VALUE]",
		Short: "Store a secret, reading it from stdin when VALUE is omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := checkCredentialKey(key); err != nil {
				return err
			}

			var value string
			if len(args) == 2 {
				value = args[1]
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "Enter value for %s: ", key)
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading value: %w", err)
				}
				value = strings.TrimSpace(line)
			}
			if value == "" {
				return fmt.Errorf("empty value for %s", key)
			}

			if err := credential.Set(key, value); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), theme.SuccessStyle.Render("Stored "+key))
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete KEY",
		Short: "Remove a secret from the keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkCredentialKey(args[0]); err != nil {
				return err
			}
			if err := credential.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), theme.SuccessStyle.Render("Removed "+args[0]))
			return nil
		},
	}

	cmd.AddCommand(setCmd, deleteCmd)
	return cmd
}

func checkCredentialKey(key string) error {
	if !slices.Contains(credential.KnownKeys, key) {
		return fmt.Errorf("unknown credential key %q, expected one of: %s",
			key, strings.Join(credential.KnownKeys, ", "))
	}
	return nil
}
