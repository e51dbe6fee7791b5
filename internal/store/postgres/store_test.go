package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/segmentscribe/internal/store"
	"github.com/MrWong99/segmentscribe/internal/store/postgres"
)

// testDSN skips the test unless SEGMENTSCRIBE_TEST_POSTGRES_DSN is set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("SEGMENTSCRIBE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SEGMENTSCRIBE_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore returns a store on a freshly dropped schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS transcripts CASCADE"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}
	pool.Close()

	st, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(st.Close)
	return st
}

func TestStore_PutGet(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	key := store.Key{AudioSHA256: "deadbeef", Engine: "whisper", Variant: "v1"}
	if _, err := st.Get(ctx, key); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get before Put: err = %v, want ErrNotFound", err)
	}

	want := store.Entry{
		Key:        key,
		SourcePath: "/data/meeting.flac",
		Text:       "hello world. second part",
		Language:   "en",
		Segments: []store.Segment{
			{Start: 0, End: 30 * time.Second, Cut: "silence", Text: "hello world."},
			{Start: 30 * time.Second, End: 42 * time.Second, Cut: "end", Text: "second part"},
		},
		AudioDuration: 42 * time.Second,
	}
	if err := st.Put(ctx, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := st.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Text != want.Text || got.Language != want.Language || got.SourcePath != want.SourcePath {
		t.Errorf("Get = %+v", got)
	}
	if got.AudioDuration != want.AudioDuration {
		t.Errorf("AudioDuration = %v, want %v", got.AudioDuration, want.AudioDuration)
	}
	if len(got.Segments) != 2 || got.Segments[1] != want.Segments[1] {
		t.Errorf("Segments = %+v", got.Segments)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}

	want.Text = "replaced"
	if err := st.Put(ctx, want); err != nil {
		t.Fatalf("second Put: %v", err)
	}
	got, err = st.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after upsert: %v", err)
	}
	if got.Text != "replaced" {
		t.Errorf("Text after upsert = %q", got.Text)
	}
}

func TestStore_KeyParts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := store.Key{AudioSHA256: "cafe", Engine: "whisper"}
	if err := st.Put(ctx, store.Entry{Key: base, Text: "base"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	for _, k := range []store.Key{
		{AudioSHA256: "cafe", Engine: "openai"},
		{AudioSHA256: "cafe", Engine: "whisper", Variant: "de"},
		{AudioSHA256: "beef", Engine: "whisper"},
	} {
		if _, err := st.Get(ctx, k); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Get(%+v): err = %v, want ErrNotFound", k, err)
		}
	}
}

func TestStore_Delete(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	key := store.Key{AudioSHA256: "abc", Engine: "deepgram"}
	if err := st.Put(ctx, store.Entry{Key: key, Text: "x"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := st.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := st.Get(ctx, key); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get after Delete: err = %v", err)
	}
	if err := st.Delete(ctx, key); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}
}

func TestStore_Search(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i, text := range []string{"deploy to kubernetes today", "kubernetes cluster upgrade", "lunch plans"} {
		k := store.Key{AudioSHA256: string(rune('a' + i)), Engine: "whisper"}
		if err := st.Put(ctx, store.Entry{Key: k, Text: text}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	got, err := st.Search(ctx, "kubernetes", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Search returned %d entries, want 2", len(got))
	}

	got, err = st.Search(ctx, "kubernetes", 1)
	if err != nil {
		t.Fatalf("Search with limit: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Search with limit returned %d entries, want 1", len(got))
	}

	got, err = st.Search(ctx, "pizza", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Search(pizza) = %#v, want empty non-nil", got)
	}
}

func TestStore_Ping(t *testing.T) {
	st := newTestStore(t)
	if err := st.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
