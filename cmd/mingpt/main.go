package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:   "mingpt",
		Usage:  "A from-scratch GPT-2 and its parity check against the reference model",
		Flags:  globalFlags(),
		Before: setup,
		// prompts contain commas
		DisableSliceFlagSeparator: true,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			parityCmd(),
			generateCmd(),
			fetchCmd(),
			initCmd(),
			inspectCmd(),
			serveCmd(),
			versionCmd(),
		},
	}
}
