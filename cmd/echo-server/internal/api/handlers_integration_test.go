//go:build integration

package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/echobus"
	"github.com/coregx/echobus/adapters/memory"
	"github.com/coregx/echobus/adapters/relica"
	"github.com/coregx/echobus/model"
)

func TestDeadLetterRoutes_SQLite(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "echobus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, echobus.Migrate(context.Background(), db, "sqlite3", echobus.MigrateOptions{}))

	repos := relica.NewRepositories(db, "sqlite3")
	logger := &echobus.NoopLogger{}

	publisher, err := echobus.NewPublisher(
		echobus.WithPublisherProducer(memory.NewBroker(1).Producer()),
		echobus.WithPublisherLogger(logger),
	)
	require.NoError(t, err)
	service, err := echobus.NewEchoService(
		echobus.WithEchoPublisher(publisher),
		echobus.WithEchoStore(repos.Message),
		echobus.WithEchoLogger(logger),
	)
	require.NoError(t, err)

	server := httptest.NewServer(NewHandler(service, repos.DeadLetter, nil, logger).Router())
	t.Cleanup(server.Close)

	var ids []int64
	for _, id := range []string{"a", "b"} {
		dl, err := repos.DeadLetter.Save(context.Background(), model.NewDeadLetter(
			model.NewEnvelope(id, "BAD", "topic-1"), "topic-1.DLT", model.DeadLetterFailure{Kind: "non-retryable", Attempts: 1}))
		require.NoError(t, err)
		ids = append(ids, dl.ID)
	}

	resp, err := http.Post(server.URL+"/dead-letters/"+strconv.FormatInt(ids[0], 10)+"/resolve",
		"application/json", strings.NewReader(`{"resolvedBy":"ops"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/dead-letters/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats model.DeadLetterStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 2, stats.TotalItems)
	assert.Equal(t, 1, stats.ResolvedItems)
	assert.Equal(t, 1, stats.UnresolvedItems)
}
