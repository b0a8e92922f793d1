/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/suparena/entitymapper"
	"github.com/suparena/entitymapper/config"
	"github.com/suparena/entitymapper/consistency"
	"gopkg.in/yaml.v3"
)

var (
	versionFlag = flag.Bool("version", false, "Show version information")
	vFlag       = flag.Bool("v", false, "Show version information (short)")
	configFlag  = flag.String("config", "", "YAML configuration file")
	envFlag     = flag.String("env", "", ".env file with AWS credentials (default ./.env when present)")
	debugFlag   = flag.Bool("debug", false, "Log at debug level")
)

// resolved is what the tool prints: the effective settings after defaults
// and the environment were applied.
type resolved struct {
	Version   string                             `yaml:"version"`
	Read      consistency.Level                  `yaml:"read"`
	Write     consistency.Level                  `yaml:"write"`
	Tables    map[string]consistency.TableLevels `yaml:"tables,omitempty"`
	FlushMode string                             `yaml:"flush_mode"`
	Backend   string                             `yaml:"backend"`
	Routes    map[string]string                  `yaml:"routes,omitempty"`
	DynamoDB  *config.DynamoDB                   `yaml:"dynamodb,omitempty"`
}

func main() {
	flag.Parse()

	if *versionFlag || *vFlag {
		info := entitymapper.GetVersionInfo()
		fmt.Printf("entitymapper version %s\n", info.Version)
		fmt.Printf("Git commit: %s\n", info.GitCommit)
		fmt.Printf("Build date: %s\n", info.BuildDate)
		fmt.Printf("Go version: %s\n", info.GoVersion)
		os.Exit(0)
	}

	level := slog.LevelInfo
	if *debugFlag {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(context.Background(), os.Stdout, logger); err != nil {
		logger.Error("entitymapper failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, logger *slog.Logger) error {
	var envFiles []string
	if *envFlag != "" {
		envFiles = append(envFiles, *envFlag)
	}
	if err := config.LoadEnv(envFiles...); err != nil {
		return err
	}

	cfg := config.Default()
	cfg.ApplyEnv()
	if *configFlag != "" {
		loaded, err := config.Load(*configFlag)
		if err != nil {
			return err
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		return err
	}

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}
	mode, err := cfg.FlushMode()
	if err != nil {
		return err
	}
	backend, err := cfg.NewBackend(ctx, logger)
	if err != nil {
		return err
	}
	mgr, err := entitymapper.New(backend,
		entitymapper.WithLogger(logger),
		entitymapper.WithPolicy(policy),
		entitymapper.WithFlushMode(mode),
	)
	if err != nil {
		return err
	}
	logger.Debug("entity manager ready", "backend", cfg.Backend.Kind, "mode", mgr.Mode())

	r := resolved{
		Version:   entitymapper.Version,
		Read:      policy.DefaultReadLevel(),
		Write:     policy.DefaultWriteLevel(),
		Tables:    policy.Tables(),
		FlushMode: mgr.Mode().String(),
		Backend:   cfg.Backend.Kind,
		Routes:    cfg.Backend.Routes,
	}
	if cfg.Backend.Kind == config.BackendDynamoDB {
		r.DynamoDB = &cfg.Backend.DynamoDB
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to print configuration: %w", err)
	}
	return enc.Close()
}
