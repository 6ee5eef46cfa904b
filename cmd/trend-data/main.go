package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"

	"trend-data/internal/slogx"
)

func init() {
	slog.SetDefault(slogx.NewDefault("info"))
}

func main() {
	_ = godotenv.Load()

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&refreshCmd{}, "")
	commander.Register(&classifyCmd{}, "")
	commander.Register(&serveCmd{}, "")
	commander.Register(&runCmd{}, "")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
