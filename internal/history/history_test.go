// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/gdbstub/internal/gdbserver"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func summaryAt(id string, start time.Time) gdbserver.Summary {
	return gdbserver.Summary{
		ID:        id,
		Remote:    "127.0.0.1:50000",
		Transport: "tcp",
		Arch:      "i486",
		Start:     start,
		End:       start.Add(2 * time.Second),
		Commands:  7,
		Reason:    gdbserver.EndDetach,
	}
}

func TestRecordAndList(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Record(ctx, summaryAt(fmt.Sprintf("s%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	sessions, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 3)

	// Newest first.
	assert.Equal(t, "s2", sessions[0].ID)
	assert.Equal(t, "s0", sessions[2].ID)

	got := sessions[2]
	assert.Equal(t, "127.0.0.1:50000", got.Remote)
	assert.Equal(t, "tcp", got.Transport)
	assert.Equal(t, "i486", got.Arch)
	assert.Equal(t, 7, got.Commands)
	assert.Equal(t, gdbserver.EndDetach, got.Reason)
	assert.True(t, got.Start.Equal(base))
	assert.True(t, got.End.Equal(base.Add(2*time.Second)))
}

func TestListLimit(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, summaryAt(fmt.Sprintf("s%d", i), base.Add(time.Duration(i)*time.Second))))
	}

	sessions, err := store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	sessions, err = store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, sessions, 5)
}

func TestRecordErrorSession(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	sum := summaryAt("failed", time.Now())
	sum.Reason = gdbserver.EndError
	sum.Error = "register map not found: m68000"
	sum.Commands = 0
	require.NoError(t, store.Record(ctx, sum))

	sessions, err := store.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, gdbserver.EndError, sessions[0].Reason)
	assert.Equal(t, "register map not found: m68000", sessions[0].Error)
}

func TestRecordReplaces(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	sum := summaryAt("same", time.Now())
	require.NoError(t, store.Record(ctx, sum))
	sum.Commands = 42
	require.NoError(t, store.Record(ctx, sum))

	sessions, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 42, sessions[0].Commands)
}

func TestRecordRequiresID(t *testing.T) {
	store := openStore(t)
	err := store.Record(context.Background(), gdbserver.Summary{})
	require.Error(t, err)
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, summaryAt("persisted", time.Now())))
	require.NoError(t, store.Close())

	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	sessions, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "persisted", sessions[0].ID)
	assert.Equal(t, path, store.Path())
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	require.Error(t, err)
}
