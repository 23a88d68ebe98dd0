package trampoline

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/manifest-network/trampoline/internal/config"
	"github.com/manifest-network/trampoline/internal/project"
	"github.com/manifest-network/trampoline/sdk/account"
	"github.com/manifest-network/trampoline/sdk/types"
)

type accountView struct {
	LockArg string `json:"lock_arg"`
	Address string `json:"address"`
}

func viewAccount(a *account.Account) (accountView, error) {
	addr, err := types.AddressFromLockArg(types.Dev, a.LockArg())
	if err != nil {
		return accountView{}, err
	}
	return accountView{LockArg: a.LockArgHex(), Address: addr.String()}, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}

// accountManager loads the project and validates the account flags.
func accountManager() (*project.AccountManager, config.AccountConfig, error) {
	cfg := config.LoadAccountConfigFromCLI()
	if err := cfg.Validate(); err != nil {
		return nil, cfg, fmt.Errorf("invalid Account configuration: %w", err)
	}
	p, err := loadProject()
	if err != nil {
		return nil, cfg, err
	}
	return project.NewAccountManager(p.AccountsDir()), cfg, nil
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage the accounts of the project",
}

var accountNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Generate a new account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, _, err := accountManager()
		if err != nil {
			return err
		}
		a, err := m.CreateAccount()
		if err != nil {
			return err
		}
		slog.Info("Account created", "lock_arg", a.LockArgHex())
		v, err := viewAccount(a)
		if err != nil {
			return err
		}
		return printJSON(cmd, v)
	},
}

var accountImportCmd = &cobra.Command{
	Use:   "import [secret-key]",
	Short: "Import a hex secret key, or a keystore file with --keystore",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, cfg, err := accountManager()
		if err != nil {
			return err
		}
		var a *account.Account
		switch {
		case cfg.Keystore != "":
			b, err := os.ReadFile(cfg.Keystore)
			if err != nil {
				return fmt.Errorf("failed to read keystore: %w", err)
			}
			if a, err = m.ImportKeystore(b, []byte(cfg.Password)); err != nil {
				return err
			}
		case len(args) == 1:
			if a, err = m.ImportAccount(args[0]); err != nil {
				return err
			}
		default:
			return fmt.Errorf("a secret key or --keystore is required")
		}
		slog.Info("Account imported", "lock_arg", a.LockArgHex())
		v, err := viewAccount(a)
		if err != nil {
			return err
		}
		return printJSON(cmd, v)
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the lock args of the project accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, _, err := accountManager()
		if err != nil {
			return err
		}
		lockArgs, err := m.List()
		if err != nil {
			return err
		}
		for _, l := range lockArgs {
			fmt.Fprintln(cmd.OutOrStdout(), l)
		}
		return nil
	},
}

var accountExportCmd = &cobra.Command{
	Use:   "export [lock-arg]",
	Short: "Export an account as a password protected keystore",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, cfg, err := accountManager()
		if err != nil {
			return err
		}
		if cfg.Password == "" {
			return fmt.Errorf("--password is required to export an account")
		}
		ks, err := m.ExportKeystore(args[0], []byte(cfg.Password))
		if err != nil {
			return err
		}
		if cfg.Keystore == "" {
			return printJSON(cmd, ks)
		}
		b, err := json.Marshal(ks)
		if err != nil {
			return err
		}
		if err := os.WriteFile(cfg.Keystore, b, 0o600); err != nil {
			return fmt.Errorf("failed to write keystore: %w", err)
		}
		slog.Info("Keystore written", "path", cfg.Keystore)
		return nil
	},
}

func init() {
	accountCmd.PersistentFlags().String("password", "", "Keystore password")
	accountCmd.PersistentFlags().String("keystore", "", "Keystore file to read or write")
	if err := viper.BindPFlags(accountCmd.PersistentFlags()); err != nil {
		slog.Error("Failed to bind accountCmd flags", "error", err)
	}

	accountCmd.AddCommand(accountNewCmd, accountImportCmd, accountListCmd, accountExportCmd)
}
