package storefs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-deck-export/deck"
)

func TestStore_PutOpenDelete(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	store.Now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }

	ref, err := store.Put(context.Background(), "export_abc123def456.pdf", bytes.NewBufferString("%PDF-1.4"), deck.ArtifactMeta{
		Filename: "Intro_Deck.pdf",
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if ref.Meta.Size != 8 {
		t.Fatalf("expected size 8, got %d", ref.Meta.Size)
	}
	if ref.Meta.ContentType != "application/pdf" {
		t.Fatalf("expected pdf content type, got %q", ref.Meta.ContentType)
	}
	if !ref.Meta.CreatedAt.Equal(store.Now()) {
		t.Fatalf("expected created_at from clock, got %v", ref.Meta.CreatedAt)
	}

	reader, meta, err := store.Open(context.Background(), "export_abc123def456.pdf")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "%PDF-1.4" {
		t.Fatalf("unexpected payload %q", data)
	}
	if meta.Filename != "Intro_Deck.pdf" {
		t.Fatalf("expected filename, got %q", meta.Filename)
	}

	if err := store.Delete(context.Background(), "export_abc123def456.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, _, err = store.Open(context.Background(), "export_abc123def456.pdf")
	if deck.KindFromError(err) != deck.KindNotFound {
		t.Fatalf("expected not_found after delete, got %v", err)
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Fatalf("expected empty root after delete, got %d entries", len(entries))
	}
	if err := store.Delete(context.Background(), "export_abc123def456.pdf"); err != nil {
		t.Fatalf("expected second delete to be a no-op, got %v", err)
	}
}

func TestStore_RejectsEscapingKeys(t *testing.T) {
	store := NewStore(t.TempDir())
	for _, key := range []string{"", "/", "x.pdf.meta.json"} {
		if _, err := store.Put(context.Background(), key, bytes.NewBufferString("x"), deck.ArtifactMeta{}); deck.KindFromError(err) != deck.KindInvalidInput {
			t.Fatalf("key %q: expected invalid_input, got %v", key, err)
		}
	}

	// traversal is cleaned into the root
	ref, err := store.Put(context.Background(), "../../outside.pdf", bytes.NewBufferString("x"), deck.ArtifactMeta{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.Root, "outside.pdf")); err != nil {
		t.Fatalf("expected file inside root for key %q: %v", ref.Key, err)
	}
}

func TestStore_RequiresRoot(t *testing.T) {
	store := &Store{}
	_, _, err := store.Open(context.Background(), "a.pdf")
	if deck.KindFromError(err) != deck.KindInvalidInput {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}

func TestStore_CanceledPutLeavesNothing(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Put(ctx, "a.pdf", bytes.NewBufferString("%PDF"), deck.ArtifactMeta{}); err == nil {
		t.Fatalf("expected canceled put to fail")
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Fatalf("expected no files, got %d", len(entries))
	}
}

func TestStore_WithService(t *testing.T) {
	store := NewStore(t.TempDir())
	ref, err := store.Put(context.Background(), deck.ArtifactKey("export_000000000001"), bytes.NewBufferString("%PDF"), deck.ArtifactMeta{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if ref.Key != "export_000000000001.pdf" {
		t.Fatalf("unexpected key %q", ref.Key)
	}
}
