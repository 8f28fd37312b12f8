package internal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/iksnae/devtrail/testutil"
)

func TestStorage_LoadComposers(t *testing.T) {
	path := filepath.Join(testutil.CreateTempDir(t), "ws.vscdb")
	testutil.CreateItemTableDB(t, path, map[string]string{
		composerIndexKey: `{"allComposers":[
			{"composerId":"old","lastUpdatedAt":1000},
			{"composerId":"","lastUpdatedAt":9000},
			{"composerId":"new","name":"Latest","lastUpdatedAt":5000}
		]}`,
	})
	db, err := OpenDatabase(path)
	if err != nil {
		t.Fatalf("OpenDatabase() error = %v", err)
	}
	defer db.Close()

	composers, err := NewStorage(db).LoadComposers(context.Background())
	if err != nil {
		t.Fatalf("LoadComposers() error = %v", err)
	}
	if len(composers) != 2 {
		t.Fatalf("LoadComposers() = %d, want 2", len(composers))
	}
	if composers[0].ComposerID != "new" || composers[1].ComposerID != "old" {
		t.Errorf("order = %s, %s; want new, old", composers[0].ComposerID, composers[1].ComposerID)
	}
}

func TestStorage_LoadComposers_NoIndex(t *testing.T) {
	path := filepath.Join(testutil.CreateTempDir(t), "ws.vscdb")
	testutil.CreateItemTableDB(t, path, nil)
	db, err := OpenDatabase(path)
	if err != nil {
		t.Fatalf("OpenDatabase() error = %v", err)
	}
	defer db.Close()

	composers, err := NewStorage(db).LoadComposers(context.Background())
	if err != nil || len(composers) != 0 {
		t.Errorf("LoadComposers() = %v, %v", composers, err)
	}
}

func TestStorage_LoadBubbles(t *testing.T) {
	db := testutil.CreateInMemoryDB(t)
	testutil.InsertKV(t, db, "bubbleId:c1:b1", `{"type":1,"text":"Hello"}`)
	testutil.InsertKV(t, db, "bubbleId:c1:b2", `{broken`)
	testutil.InsertKV(t, db, "bubbleId:c2:b3", `{"type":2,"text":"Elsewhere"}`)

	bubbles, err := NewStorage(db).LoadBubbles(context.Background(), "c1")
	if err != nil {
		t.Fatalf("LoadBubbles() error = %v", err)
	}
	if len(bubbles) != 1 {
		t.Fatalf("LoadBubbles() = %d, want 1", len(bubbles))
	}
	if bubbles[0].BubbleID != "b1" || bubbles[0].ComposerID != "c1" {
		t.Errorf("bubble = %+v", bubbles[0])
	}
}
