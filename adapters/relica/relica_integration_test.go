//go:build integration

package relica_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/echobus"
	"github.com/coregx/echobus/adapters/relica"
	"github.com/coregx/echobus/model"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "echobus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, echobus.Migrate(context.Background(), db, "sqlite3", echobus.MigrateOptions{}))
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openSQLite(t)
	assert.NoError(t, echobus.Migrate(context.Background(), db, "sqlite3", echobus.MigrateOptions{}))
	assert.Error(t, echobus.Migrate(context.Background(), db, "oracle", echobus.MigrateOptions{}))
}

func TestMessageRepository_SaveAndFind(t *testing.T) {
	repos := relica.NewRepositories(openSQLite(t), "sqlite3")
	ctx := context.Background()

	for _, m := range []model.StoredMessage{
		model.NewStoredMessage("topic-1", "Hello World"),
		model.NewStoredMessage("topic-1", "100% done"),
		model.NewStoredMessage("topic-2", "hello_again"),
	} {
		saved, err := repos.Message.Save(ctx, m)
		require.NoError(t, err)
		assert.NotZero(t, saved.ID)
		assert.False(t, saved.ReceivedAt.IsZero())
	}

	tests := []struct {
		name        string
		description string
		filter      echobus.MessageFilter
		want        []string
	}{
		{name: "all", description: "empty filter returns every row in insertion order", want: []string{"Hello World", "100% done", "hello_again"}},
		{name: "topic", description: "exact topic match", filter: echobus.MessageFilter{Topic: "topic-2"}, want: []string{"hello_again"}},
		{name: "case-insensitive text", description: "substring ignores case", filter: echobus.MessageFilter{Text: "HELLO"}, want: []string{"Hello World", "hello_again"}},
		{name: "intersection", description: "both filters apply", filter: echobus.MessageFilter{Topic: "topic-1", Text: "hello"}, want: []string{"Hello World"}},
		{name: "escaped percent", description: "% is literal", filter: echobus.MessageFilter{Text: "0%"}, want: []string{"100% done"}},
		{name: "escaped underscore", description: "_ is literal", filter: echobus.MessageFilter{Text: "o_a"}, want: []string{"hello_again"}},
		{name: "no match", description: "unknown topic", filter: echobus.MessageFilter{Topic: "topic-3"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repos.Message.Find(ctx, tt.filter)
			require.NoError(t, err, tt.description)

			texts := []string{}
			for _, m := range got {
				texts = append(texts, m.Message)
			}
			assert.Equal(t, tt.want, texts, tt.description)
		})
	}
}

func TestDeadLetterRepository_Lifecycle(t *testing.T) {
	repos := relica.NewRepositories(openSQLite(t), "sqlite3")
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	env := model.NewEnvelope("id-1", "BAD", "topic-1")
	env.Headers = model.Headers{"echo-publish-id": "p-1"}

	saved, err := repos.DeadLetter.Save(ctx, model.NewDeadLetter(env, "topic-1.DLT", model.DeadLetterFailure{
		Kind:           "non-retryable",
		Type:           "*echobus.ProcessingError",
		Message:        "invalid echo message content: BAD",
		Attempts:       1,
		FirstAttemptAt: now,
		LastAttemptAt:  now,
	}))
	require.NoError(t, err)
	require.NotZero(t, saved.ID)

	loaded, err := repos.DeadLetter.Load(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "id-1", loaded.EnvelopeID)
	assert.Equal(t, "topic-1.DLT", loaded.DeadLetterTopic)
	assert.Equal(t, 1, loaded.Attempts)
	headers, err := loaded.HeaderMap()
	require.NoError(t, err)
	assert.Equal(t, "p-1", headers["echo-publish-id"])

	byEnvelope, err := repos.DeadLetter.FindByEnvelopeID(ctx, "id-1")
	require.NoError(t, err)
	assert.Len(t, byEnvelope, 1)

	unresolved, err := repos.DeadLetter.FindUnresolved(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, unresolved, 1)

	loaded.Resolve("ops", "replayed")
	_, err = repos.DeadLetter.Save(ctx, loaded)
	require.NoError(t, err)

	unresolved, err = repos.DeadLetter.FindUnresolved(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unresolved)

	stats, err := repos.DeadLetter.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalItems)
	assert.Equal(t, 1, stats.ResolvedItems)
	assert.Equal(t, 0, stats.UnresolvedItems)

	_, err = repos.DeadLetter.Load(ctx, 999)
	assert.True(t, echobus.IsNoData(err))
}

func TestDeadLetterRepository_GetStats(t *testing.T) {
	repos := relica.NewRepositories(openSQLite(t), "sqlite3")
	ctx := context.Background()

	stats, err := repos.DeadLetter.GetStats(ctx)
	require.NoError(t, err, "counting an empty table")
	assert.Equal(t, model.DeadLetterStats{LastUpdated: stats.LastUpdated}, stats)

	var saved []model.DeadLetter
	for _, id := range []string{"a", "b", "c", "d"} {
		env := model.NewEnvelope(id, "BAD", "topic-1")
		dl, err := repos.DeadLetter.Save(ctx, model.NewDeadLetter(env, "topic-1.DLT", model.DeadLetterFailure{
			Kind:           "non-retryable",
			Attempts:       1,
			FirstAttemptAt: time.Now().UTC(),
			LastAttemptAt:  time.Now().UTC(),
		}))
		require.NoError(t, err)
		saved = append(saved, dl)
	}

	for _, dl := range saved[:3] {
		dl.Resolve("ops", "ignored")
		_, err := repos.DeadLetter.Save(ctx, dl)
		require.NoError(t, err)
	}

	stats, err = repos.DeadLetter.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalItems)
	assert.Equal(t, 3, stats.ResolvedItems)
	assert.Equal(t, 1, stats.UnresolvedItems)
	assert.WithinDuration(t, time.Now(), stats.LastUpdated, time.Minute)
}

func TestMessageRepository_FindFoldsASCIIOnly(t *testing.T) {
	repos := relica.NewRepositories(openSQLite(t), "sqlite3")
	ctx := context.Background()

	saved, err := repos.Message.Save(ctx, model.NewStoredMessage("topic-1", "école ÉTÉ"))
	require.NoError(t, err)

	tests := []struct {
		text string
		want bool
	}{
		{text: "COLE", want: true},
		{text: "ÉTÉ", want: true},
		{text: "ÉCOLE", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			filter := echobus.MessageFilter{Text: tt.text}
			got, err := repos.Message.Find(ctx, filter)
			require.NoError(t, err)

			assert.Equal(t, tt.want, len(got) == 1)
			assert.Equal(t, tt.want, filter.Matches(saved), "memory and SQLite agree")
		})
	}
}
