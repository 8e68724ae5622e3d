package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"crossexchange/internal/cli"
	"crossexchange/pkg/crossexchange"
)

func main() {
	server := os.Getenv("CROSSEXCHANGE_URL")
	if server == "" {
		server = "http://localhost:8080"
	}
	flag.StringVar(&server, "server", server, "crossexchange-server base URL")
	currency := flag.String("currency", "USD", "currency used to format prices")
	plain := flag.Bool("plain", false, "print raw markdown")

	env := &cli.Env{Out: os.Stdout, Err: os.Stderr}
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	for _, c := range cli.Commands(env) {
		commander.Register(c, "trading")
	}

	flag.Parse()
	env.API = crossexchange.NewClient(server)
	env.Currency = *currency
	env.Plain = *plain
	os.Exit(int(commander.Execute(context.Background())))
}
