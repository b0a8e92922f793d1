/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/suparena/entitymapper/consistency"
	"github.com/suparena/entitymapper/datastore"
	"github.com/suparena/entitymapper/datastore/ddb"
	"github.com/suparena/entitymapper/datastore/memtable"
	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/flush"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemtable = "memtable"
	BackendDynamoDB = "dynamodb"

	FlushImmediate = "immediate"
	FlushBatching  = "batching"
)

// Environment variables that override the file.
const (
	EnvAccessKey = "AWS_ACCESS_KEY"
	EnvSecretKey = "AWS_SECRET_KEY"
	EnvRegion    = "AWS_REGION"
	EnvTable     = "AWS_DDB_TABLE"
)

// Config is the file format of an entitymapper deployment:
//
//	consistency:
//	  read: local_quorum
//	  write: quorum
//	  tables:
//	    players: {read: one}
//	flush:
//	  mode: immediate
//	backend:
//	  kind: dynamodb
//	  dynamodb:
//	    table: entities
//	    region: eu-west-1
//	  routes:
//	    sessions: memtable
type Config struct {
	Consistency Consistency `yaml:"consistency"`
	Flush       Flush       `yaml:"flush"`
	Backend     Backend     `yaml:"backend"`
}

// Consistency holds level names, parsed case-insensitively.
type Consistency struct {
	Read   string                      `yaml:"read"`
	Write  string                      `yaml:"write"`
	Tables map[string]TableConsistency `yaml:"tables,omitempty"`
}

type TableConsistency struct {
	Read  string `yaml:"read,omitempty"`
	Write string `yaml:"write,omitempty"`
}

type Flush struct {
	Mode string `yaml:"mode"`
}

// Backend selects the storage. Routes send single tables to another kind
// of backend than Kind.
type Backend struct {
	Kind     string            `yaml:"kind"`
	DynamoDB DynamoDB          `yaml:"dynamodb"`
	Routes   map[string]string `yaml:"routes,omitempty"`
}

// DynamoDB credentials only come from the environment.
type DynamoDB struct {
	Table     string `yaml:"table"`
	Region    string `yaml:"region"`
	ChunkSize int    `yaml:"chunk_size,omitempty"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Consistency: Consistency{Read: "local_quorum", Write: "local_quorum"},
		Flush:       Flush{Mode: FlushImmediate},
		Backend:     Backend{Kind: BackendMemtable},
	}
}

// Parse reads YAML over the defaults, applies the environment and validates.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is Parse on the contents of path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// LoadEnv loads .env files into the environment without overriding
// variables already set. With no files it loads ./.env when present.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env: %w", err)
	}
	return nil
}

// ApplyEnv overrides the DynamoDB settings with the AWS_* variables.
func (c *Config) ApplyEnv() {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Backend.DynamoDB.AccessKey, EnvAccessKey)
	set(&c.Backend.DynamoDB.SecretKey, EnvSecretKey)
	set(&c.Backend.DynamoDB.Region, EnvRegion)
	set(&c.Backend.DynamoDB.Table, EnvTable)
}

// Validate reports the first invalid setting as a ValidationError.
func (c *Config) Validate() error {
	if _, err := c.Policy(); err != nil {
		return err
	}
	if _, err := c.FlushMode(); err != nil {
		return err
	}
	if err := c.validateKind("backend.kind", c.Backend.Kind); err != nil {
		return err
	}
	for table, kind := range c.Backend.Routes {
		if err := c.validateKind("backend.routes."+table, kind); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateKind(field, kind string) error {
	switch strings.ToLower(kind) {
	case BackendMemtable:
	case BackendDynamoDB:
		d := c.Backend.DynamoDB
		if d.Table == "" {
			return errors.NewValidationError("backend.dynamodb.table", "a table is required")
		}
		if d.Region == "" {
			return errors.NewValidationError("backend.dynamodb.region", "a region is required")
		}
		if d.ChunkSize < 0 || d.ChunkSize > ddb.MaxTransactItems {
			return errors.NewValidationError("backend.dynamodb.chunk_size", fmt.Sprintf("must be between 1 and %d", ddb.MaxTransactItems))
		}
	default:
		return errors.NewValidationError(field, fmt.Sprintf("unknown backend %q", kind))
	}
	return nil
}

func parseLevel(field, value string) (consistency.Level, error) {
	if value == "" {
		return consistency.Unset, nil
	}
	level, err := consistency.ParseLevel(value)
	if err != nil {
		return consistency.Unset, errors.NewValidationError(field, err.Error())
	}
	return level, nil
}

// Policy builds the consistency policy. Unset defaults fall back to One.
func (c *Config) Policy() (*consistency.Policy, error) {
	read, err := parseLevel("consistency.read", c.Consistency.Read)
	if err != nil {
		return nil, err
	}
	write, err := parseLevel("consistency.write", c.Consistency.Write)
	if err != nil {
		return nil, err
	}
	policy := consistency.NewPolicy(read, write)
	for table, tc := range c.Consistency.Tables {
		var levels consistency.TableLevels
		if levels.Read, err = parseLevel("consistency.tables."+table+".read", tc.Read); err != nil {
			return nil, err
		}
		if levels.Write, err = parseLevel("consistency.tables."+table+".write", tc.Write); err != nil {
			return nil, err
		}
		policy.SetTableLevels(table, levels)
	}
	return policy, nil
}

// FlushMode parses the flush mode. Empty means immediate.
func (c *Config) FlushMode() (flush.Mode, error) {
	switch strings.ToLower(c.Flush.Mode) {
	case "", FlushImmediate:
		return flush.Immediate, nil
	case FlushBatching:
		return flush.Batching, nil
	default:
		return flush.Immediate, errors.NewValidationError("flush.mode", fmt.Sprintf("unknown flush mode %q", c.Flush.Mode))
	}
}

// NewBackend opens the configured backend. With routes it returns a
// datastore.Router over one backend per kind, Kind being the fallback.
func (c *Config) NewBackend(ctx context.Context, logger *slog.Logger) (datastore.Backend, error) {
	opened := make(map[string]datastore.Backend)
	open := func(kind string) (datastore.Backend, error) {
		kind = strings.ToLower(kind)
		if b, ok := opened[kind]; ok {
			return b, nil
		}
		b, err := c.openBackend(ctx, kind, logger)
		if err != nil {
			return nil, err
		}
		opened[kind] = b
		return b, nil
	}

	primary, err := open(c.Backend.Kind)
	if err != nil {
		return nil, err
	}
	if len(c.Backend.Routes) == 0 {
		return primary, nil
	}
	router := datastore.NewRouter(primary)
	for table, kind := range c.Backend.Routes {
		b, err := open(kind)
		if err != nil {
			return nil, err
		}
		if err := router.Register(table, b); err != nil {
			return nil, err
		}
	}
	return router, nil
}

func (c *Config) openBackend(ctx context.Context, kind string, logger *slog.Logger) (datastore.Backend, error) {
	switch kind {
	case BackendDynamoDB:
		d := c.Backend.DynamoDB
		store, err := ddb.NewDynamodbDataStore(ctx, d.AccessKey, d.SecretKey, d.Region, d.Table,
			ddb.WithLogger(logger), ddb.WithChunkSize(d.ChunkSize))
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendMemtable:
		return memtable.New(memtable.WithLogger(logger)), nil
	default:
		return nil, errors.NewValidationError("backend.kind", fmt.Sprintf("unknown backend %q", kind))
	}
}
