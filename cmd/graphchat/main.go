package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/dkozel/graphchat/chat"
	"github.com/dkozel/graphchat/config"
	"github.com/dkozel/graphchat/engine"
	"github.com/dkozel/graphchat/logging"
	"github.com/dkozel/graphchat/remote"
	"github.com/dkozel/graphchat/session"
	"github.com/dkozel/graphchat/tools"
)

// Exit codes: 0 on a normal quit, exitInterrupt when the user interrupts,
// exitFailure on startup failure.
const (
	exitFailure   = 1
	exitInterrupt = 15
)

func main() {
	os.Exit(run())
}

func run() int {
	sessionFlag := flag.String("s", "", "Session name to create or use")
	resumeFlag := flag.String("r", "", "Resume a session by name")
	toolsetFlag := flag.String("t", "", "Toolset to use (defaults to 'default')")
	engineFlag := flag.String("engine", "", "Engine backend (overrides config)")
	modelFlag := flag.String("model", "", "Model name (overrides config)")
	remoteFlag := flag.Bool("remote", false, "Serve JSON-RPC on stdio instead of the interactive terminal")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		return exitFailure
	}
	if *engineFlag != "" {
		cfg.Engine = *engineFlag
	}
	if *modelFlag != "" {
		cfg.Model = *modelFlag
	}

	logFile, err := logging.Setup(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log file: %+v\n", err)
		return exitFailure
	}
	defer logFile.Close()

	sess, err := openSession(*sessionFlag, *resumeFlag, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening session: %+v\n", err)
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	registry := tools.NewRegistry(cfg)
	defer registry.Close()

	eng, err := engine.New(ctx, cfg, registry, *toolsetFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing engine: %+v\n", err)
		return exitFailure
	}

	if *remoteFlag {
		server := remote.NewServer(eng, os.Stdin, os.Stdout)
		if err := server.Run(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return exitInterrupt
			}
			fmt.Fprintf(os.Stderr, "Remote mode failed: %+v\n", err)
			return exitFailure
		}
		return 0
	}

	styles := chat.StylesFromConfig(cfg.Styles)
	loop := chat.New(sess, eng, os.Stdin, os.Stdout, styles)
	err = loop.Run(ctx)

	// An interrupt abandons any in-flight stream or pending prompt and exits
	// with its own code. The chat loop has already said goodbye.
	if errors.Is(err, context.Canceled) {
		return exitInterrupt
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Chat stopped with an error: %+v\n", err)
		return exitFailure
	}
	return 0
}

func openSession(name, resume string, cfg *config.Config) (*session.Session, error) {
	if resume != "" {
		sess, err := session.Load(resume)
		if err != nil {
			return nil, err
		}
		fmt.Printf("Resuming session: %s\n", resume)
		if sess.Engine != "" && cfg.Engine == "" {
			cfg.Engine = sess.Engine
		}
		if sess.Model != "" && cfg.Model == "" {
			cfg.Model = sess.Model
		}
		return sess, nil
	}

	if name == "" {
		name = defaultSessionName()
	}
	sess, err := session.New(name)
	if err != nil {
		return nil, err
	}
	sess.Engine = cfg.Engine
	sess.Model = cfg.Model
	fmt.Printf("Starting new session: %s\n", name)
	return sess, nil
}

func defaultSessionName() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "graphchat"
	}
	return fmt.Sprintf("%s_%s", filepath.Base(wd), time.Now().Format("2006-01-02_15-04-05"))
}
