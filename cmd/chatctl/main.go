package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
)

// Config is read from the environment so scripts can export a token once.
type Config struct {
	URL   string `envconfig:"CHAT_URL" default:"http://localhost:8080"`
	Token string `envconfig:"CHAT_TOKEN"`
	// CHAT_COLOURS disables colourised output when piping
	Colours bool `envconfig:"CHAT_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}

var config Config

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "Command-line client for the chat relay",
	Long:  "Talk to a chat relay from a terminal: log in, send messages, follow live events and inspect a store.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		config = cfg
		color.Enable = cfg.Colours
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(registerCmd, loginCmd, sendCmd, conversationsCmd, messagesCmd, readCmd, watchCmd, inspectCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
