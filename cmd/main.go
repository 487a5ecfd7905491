package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"loan-rag/internal/config"
)

const configFilePath = "./configs/config.yaml"

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, cfg *config.Config, args []string) error
}

var commands = []command{
	{"ingest", "parse local documents into raw records", runIngest},
	{"process", "consolidate raw records and write the chunk manifest", runProcess},
	{"build-index", "embed the manifest fragments and rebuild the vector index", runBuildIndex},
	{"query", "answer a single question", runQuery},
	{"demo", "answer the demonstration questions", runDemo},
	{"chat", "interactive chat window", runChat},
	{"serve", "serve the HTTP query API", runServe},
	{"export", "write an index snapshot", runExport},
	{"import", "replace the index with a snapshot", runImport},
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// answers go to stdout, logs to stderr
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the YAML config file")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("Error loading .env file")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	config.ApplyEnv(cfg, os.LookupEnv)
	setupLogger(cfg.Log)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	log.Debug().Interface("config", redacted(*cfg)).Msg("Loaded config")

	name, args := flag.Arg(0), flag.Args()[1:]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		err := c.run(ctx, cfg, args)
		stop()
		if err != nil {
			log.Fatal().Err(err).Str("command", name).Msg("Command failed")
		}
		return
	}
	log.Error().Str("command", name).Msg("Unknown command")
	usage()
	os.Exit(2)
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Level).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Caller().Logger()
}

// redacted hides credentials before the config is logged.
func redacted(cfg config.Config) config.Config {
	for _, s := range []*string{&cfg.EmbedLLM.Key, &cfg.InferenceLLM.Key, &cfg.Database.Password, &cfg.VectorStore.EncryptionKey} {
		if *s != "" {
			*s = "***"
		}
	}
	return cfg
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [-config path] <command> [flags]\n\nCommands:\n", os.Args[0])
	for _, c := range commands {
		fmt.Fprintf(out, "  %-12s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(out, "\nFlags:")
	flag.PrintDefaults()
}
