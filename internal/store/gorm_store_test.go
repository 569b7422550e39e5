package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"djuka/internal/convo"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := NewGormStore("sqlite", filepath.Join(t.TempDir(), "djuka.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleTurns(t *testing.T) []convo.Turn {
	t.Helper()
	at := time.Date(2025, 5, 4, 18, 30, 0, 0, time.UTC)
	texts := []struct {
		sender convo.Sender
		text   string
	}{
		{convo.SenderUser, "gdje si djuka"},
		{convo.SenderBot, "Tu sam! Kako mogu da ti pomognem?"},
		{convo.SenderUser, "pošalji poruku Ana stići ću kasnije"},
		{convo.SenderBot, "Izaberi servis: telefon, whatsapp, viber."},
	}

	out := make([]convo.Turn, 0, len(texts))
	for i, tt := range texts {
		turn, err := convo.NewTurn(tt.sender, tt.text, at.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		out = append(out, turn)
	}
	return out
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	turns := sampleTurns(t)

	require.NoError(t, s.Save(ctx, turns))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, len(turns))
	for i := range turns {
		assert.Equal(t, turns[i].ID, loaded[i].ID)
		assert.Equal(t, turns[i].Text, loaded[i].Text)
		assert.Equal(t, turns[i].Sender, loaded[i].Sender)
		assert.True(t, turns[i].Timestamp.Equal(loaded[i].Timestamp))
	}

	// save(load()) leaves observable content unchanged
	require.NoError(t, s.Save(ctx, loaded))
	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, loaded, again)
}

func TestSaveReplacesPreviousLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	turns := sampleTurns(t)

	require.NoError(t, s.Save(ctx, turns))
	require.NoError(t, s.Save(ctx, turns[:1]))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, turns[0].ID, loaded[0].ID)

	require.NoError(t, s.Save(ctx, nil))
	loaded, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestLoadEmptyStore(t *testing.T) {
	s := newTestStore(t)
	loaded, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestClosedStore(t *testing.T) {
	s, err := NewGormStore("sqlite", filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Load(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Save(context.Background(), nil), ErrClosed)
	assert.NoError(t, s.Close())
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "djuka.db")
	s, err := NewGormStore("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = os.Stat(filepath.Dir(path))
	assert.NoError(t, err)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "x")
	assert.Error(t, err)

	_, err = Open("postgres", "")
	assert.Error(t, err)
}

func TestFilePath(t *testing.T) {
	cases := []struct {
		dsn  string
		path string
		ok   bool
	}{
		{":memory:", "", false},
		{"file::memory:?cache=shared", "", false},
		{"file:test.db?mode=memory", "", false},
		{"data/djuka.db?_pragma=busy_timeout(5000)", "data/djuka.db", true},
		{"file:/tmp/djuka.db?cache=shared", "/tmp/djuka.db", true},
	}
	for _, tc := range cases {
		t.Run(tc.dsn, func(t *testing.T) {
			path, ok := filePath(tc.dsn)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.path, path)
		})
	}
}
