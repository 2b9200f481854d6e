package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

// CLI represents the main CLI structure
type CLI struct {
	APIKey   string `env:"CONVO_API_KEY" help:"API key for the completion endpoint"`
	BaseURL  string `help:"Custom API base URL"`
	Model    string `help:"Override the configured model"`
	Config   string `help:"Path to the config file" type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)"`

	Chat   ChatCmd   `cmd:"" default:"1" help:"Interactive chat (default)"`
	List   ListCmd   `cmd:"" help:"List conversations"`
	Delete DeleteCmd `cmd:"" help:"Delete a conversation"`
	Clear  ClearCmd  `cmd:"" help:"Delete all conversations"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("convo"),
		kong.Description("Streaming chat client with a persisted conversation log"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	err := ctx.Run(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
