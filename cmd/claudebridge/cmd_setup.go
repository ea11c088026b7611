package main

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/claudebridge/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("claudebridge setup")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.Claude.Path = ask(scanner, "claude CLI path", cfg.Claude.Path)
		if _, err := exec.LookPath(cfg.Claude.Path); err != nil {
			fmt.Printf("warning: %s not found on PATH\n", cfg.Claude.Path)
		}

		cfg.Server.Host = ask(scanner, "Listen host", cfg.Server.Host)
		if n, err := strconv.Atoi(ask(scanner, "Listen port", strconv.Itoa(cfg.Server.Port))); err == nil && n > 0 {
			cfg.Server.Port = n
		}

		budget := strconv.FormatFloat(cfg.Claude.MaxBudgetUSD, 'f', -1, 64)
		if f, err := strconv.ParseFloat(ask(scanner, "Max budget per request (USD)", budget), 64); err == nil && f > 0 {
			cfg.Claude.MaxBudgetUSD = f
		}

		tools := ask(scanner, "Allowed tools (comma separated)", strings.Join(cfg.Claude.AllowedTools, ","))
		cfg.Claude.AllowedTools = nil
		for _, t := range strings.Split(tools, ",") {
			if t = strings.TrimSpace(t); t != "" {
				cfg.Claude.AllowedTools = append(cfg.Claude.AllowedTools, t)
			}
		}

		cfg.Claude.APIKey = askSecret(scanner, "Anthropic API key (optional, uses CLI login otherwise)", cfg.Claude.APIKey)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// ask displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func ask(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}

// askSecret is ask with the current value masked.
func askSecret(scanner *bufio.Scanner, label, current string) string {
	if current != "" {
		masked := config.MaskSecrets(map[string]any{"claude.api_key": current})["claude.api_key"]
		fmt.Printf("%s [%v]: ", label, masked)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		if input := strings.TrimSpace(scanner.Text()); input != "" {
			return input
		}
	}
	return current
}
