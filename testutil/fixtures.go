package testutil

import (
	"database/sql"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// CursorFixture is a fake editor User directory with one global store and
// any number of workspaces.
type CursorFixture struct {
	BasePath string
	Global   *sql.DB
}

// CreateCursorFixture creates the globalStorage database under a fresh
// User directory
func CreateCursorFixture(t *testing.T) *CursorFixture {
	t.Helper()
	base := filepath.Join(CreateTempDir(t), "User")
	db := CreateKVDB(t, filepath.Join(base, "globalStorage", "state.vscdb"))
	return &CursorFixture{BasePath: base, Global: db}
}

// AddWorkspace registers a workspace opened on folder and writes its
// composer index. composers is the JSON array stored under allComposers.
func (f *CursorFixture) AddWorkspace(t *testing.T, hash, folder, composers string) string {
	t.Helper()
	dir := CreateWorkspaceFixture(t, f.BasePath, hash, folder)
	items := map[string]string{}
	if composers != "" {
		items["composer.composerData"] = `{"allComposers":` + composers + `}`
	}
	CreateItemTableDB(t, filepath.Join(dir, "state.vscdb"), items)
	return dir
}

// AddBubble stores one message under bubbleId:<composerID>:<bubbleID>
func (f *CursorFixture) AddBubble(t *testing.T, composerID, bubbleID, value string) {
	t.Helper()
	InsertKV(t, f.Global, "bubbleId:"+composerID+":"+bubbleID, value)
}

// CreateWorkspaceFixture writes workspaceStorage/<hash>/workspace.json with
// folder as a file:// URI
func CreateWorkspaceFixture(t *testing.T, basePath, hash, folder string) string {
	t.Helper()
	workspaceDir := filepath.Join(basePath, "workspaceStorage", hash)
	if err := os.MkdirAll(workspaceDir, 0755); err != nil {
		t.Fatalf("Failed to create workspace directory: %v", err)
	}

	u := url.URL{Scheme: "file", Path: folder}
	data := JSONMarshal(t, map[string]string{"folder": u.String()})
	if err := os.WriteFile(filepath.Join(workspaceDir, "workspace.json"), data, 0644); err != nil {
		t.Fatalf("Failed to write workspace.json: %v", err)
	}
	return workspaceDir
}

// WriteJSONL writes one line per entry. Entries that are not strings are
// JSON encoded; strings are written verbatim so malformed lines can be
// produced.
func WriteJSONL(t *testing.T, path string, entries ...interface{}) {
	t.Helper()
	var b strings.Builder
	for _, e := range entries {
		if s, ok := e.(string); ok {
			b.WriteString(s)
		} else {
			data, err := json.Marshal(e)
			if err != nil {
				t.Fatalf("Failed to marshal JSONL entry: %v", err)
			}
			b.Write(data)
		}
		b.WriteByte('\n')
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

// CreateTranscriptFixture writes a session transcript for a project opened
// at projectPath and returns the file path. Project directories are named
// after the path with separators replaced by '-'.
func CreateTranscriptFixture(t *testing.T, projectsDir, projectPath, session string, entries ...interface{}) string {
	t.Helper()
	dir := filepath.Join(projectsDir, strings.ReplaceAll(projectPath, string(filepath.Separator), "-"))
	path := filepath.Join(dir, session+".jsonl")
	WriteJSONL(t, path, entries...)
	return path
}
