package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"testbridge/internal/cli/command"
	"testbridge/internal/cli/config"
	httpclient "testbridge/internal/cli/http"
	"testbridge/internal/cli/repl"

	"github.com/joho/godotenv"
)

const defaultConfigPath = "configs/cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	envFile := flag.String("env", ".env", "Path to .env file with JENKINS_* settings")
	baseURL := flag.String("base", "", "Override dashboard base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	tester := flag.String("tester", "", "Tester name sent as X-Tester")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load env file failed: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *tester != "" {
		cfg.Tester = *tester
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := httpclient.New(cfg.BaseURL, cfg.Timeout, cfg.Tester)
	session := repl.New(client, command.Registry(), repl.Options{
		PrettyJSON:   cfg.PrettyJSON != nil && *cfg.PrettyJSON,
		HistoryFile:  cfg.HistoryFile,
		PollInterval: cfg.Poll.Interval,
		PollTimeout:  cfg.Poll.Timeout,
		CI:           cfg.CI,
	})

	// Non-interactive mode: run the remaining args as one command.
	if flag.NArg() > 0 {
		session.SetOutput(os.Stdout)
		if err := session.Execute(ctx, joinArgs(flag.Args())); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			stop()
			os.Exit(exitCode(err))
		}
		return
	}

	if err := session.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
