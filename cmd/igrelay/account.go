package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"igrelay/pkg/accounts"
	"igrelay/pkg/auth"
	"igrelay/pkg/config"
	"igrelay/pkg/link"
	"igrelay/pkg/logger"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage the rotation account pool",
}

var accountAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Add an Instagram account to the rotation pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := openPool()
		if err != nil {
			return err
		}

		username := link.SanitizeUsername(args[0])
		password, err := promptPassword(fmt.Sprintf("Password for @%s: ", username))
		if err != nil {
			return err
		}
		if password == "" {
			return fmt.Errorf("password cannot be empty")
		}

		if err := pool.Add(username, password); err != nil {
			return err
		}
		fmt.Printf("Added @%s to the rotation pool.\n", username)
		return nil
	},
}

var accountRemoveCmd = &cobra.Command{
	Use:   "remove <username>",
	Short: "Remove an Instagram account from the rotation pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := openPool()
		if err != nil {
			return err
		}

		username := link.SanitizeUsername(args[0])
		if err := pool.Remove(username); err != nil {
			return err
		}
		fmt.Printf("Removed @%s from the rotation pool.\n", username)
		return nil
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the rotation pool accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := openPool()
		if err != nil {
			return err
		}

		states := pool.List()
		if len(states) == 0 {
			fmt.Println("The rotation pool is empty.")
			return nil
		}

		active := pool.Active()
		limit := pool.DailyLimit()
		for _, st := range states {
			marker := " "
			if st.Username == active {
				marker = "*"
			}
			fmt.Printf("%s %-30s %-10s %d/%d today\n", marker, st.Username, st.Status, st.UsedToday, limit)
		}
		return nil
	},
}

func init() {
	accountCmd.AddCommand(accountAddCmd)
	accountCmd.AddCommand(accountRemoveCmd)
	accountCmd.AddCommand(accountListCmd)
	rootCmd.AddCommand(accountCmd)
}

// openPool loads config and opens the rotation pool for CLI management.
// Validation is skipped so pool commands work without a Telegram token.
func openPool() (*accounts.Manager, error) {
	cfg := config.DefaultConfig()
	if err := cfg.LoadFromFile(configFile); err != nil {
		return nil, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	creds, err := auth.NewManager()
	if err != nil {
		return nil, fmt.Errorf("failed to set up credential storage: %w", err)
	}

	return accounts.NewManager(&cfg.Accounts, creds, logger.GetLogger())
}

// promptPassword reads a password without echoing when stdin is a terminal
func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)

	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(password), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
