/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suparena/entitymapper/internal/logging"
	"gopkg.in/yaml.v3"
)

func TestRunPrintsResolvedConfiguration(t *testing.T) {
	t.Setenv("AWS_DDB_TABLE", "")
	path := filepath.Join(t.TempDir(), "entitymapper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
consistency:
  read: quorum
  tables:
    players: {write: all}
flush:
  mode: batching
`), 0o600))

	*configFlag = path
	t.Cleanup(func() { *configFlag = "" })

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), &out, logging.Discard()))

	var printed map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &printed))
	assert.Equal(t, "QUORUM", printed["read"])
	assert.Equal(t, "batching", printed["flush_mode"])
	assert.Equal(t, "memtable", printed["backend"])
	assert.Equal(t, map[string]any{"players": map[string]any{"write": "ALL"}}, printed["tables"])
	assert.NotContains(t, printed, "dynamodb")
}

func TestRunRejectsInvalidConfiguration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: {kind: cassandra}\n"), 0o600))
	*configFlag = path
	t.Cleanup(func() { *configFlag = "" })

	assert.Error(t, run(context.Background(), &bytes.Buffer{}, logging.Discard()))
}
