package internal

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// WorkspaceInfo represents workspace information
type WorkspaceInfo struct {
	Hash   string
	Path   string // folder the workspace was opened on
	Name   string
	DBPath string // per-workspace state.vscdb
}

// DetectWorkspaces detects all workspaces from workspaceStorage, sorted by hash
func DetectWorkspaces(basePath string) ([]*WorkspaceInfo, error) {
	workspaceStorage := filepath.Join(basePath, "workspaceStorage")

	entries, err := os.ReadDir(workspaceStorage)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &SourceUnavailableError{Source: SourceCursor, Path: workspaceStorage, Err: err}
		}
		return nil, err
	}

	var workspaces []*WorkspaceInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		hash := entry.Name()
		dir := filepath.Join(workspaceStorage, hash)
		info := &WorkspaceInfo{
			Hash:   hash,
			DBPath: filepath.Join(dir, "state.vscdb"),
		}

		if data, err := os.ReadFile(filepath.Join(dir, "workspace.json")); err == nil {
			var workspaceData struct {
				Folder string `json:"folder"`
			}
			if err := json.Unmarshal(data, &workspaceData); err == nil {
				info.Path = folderPath(workspaceData.Folder)
				if info.Path != "" {
					info.Name = filepath.Base(info.Path)
				}
			}
		}

		workspaces = append(workspaces, info)
	}

	sort.Slice(workspaces, func(i, j int) bool { return workspaces[i].Hash < workspaces[j].Hash })
	return workspaces, nil
}

// folderPath converts a workspace folder URI to a local path. Remote URIs
// (ssh, containers) have no local path.
func folderPath(folder string) string {
	if folder == "" {
		return ""
	}
	if !strings.Contains(folder, "://") {
		return filepath.Clean(folder)
	}
	u, err := url.Parse(folder)
	if err != nil || u.Scheme != "file" {
		return ""
	}
	return filepath.Clean(filepath.FromSlash(u.Path))
}

// FindWorkspaceForRepo picks the workspace opened on repoRoot. An exact match
// wins over a workspace opened on a subdirectory of the repository.
func FindWorkspaceForRepo(workspaces []*WorkspaceInfo, repoRoot string) *WorkspaceInfo {
	root := filepath.Clean(repoRoot)
	var nested *WorkspaceInfo
	for _, ws := range workspaces {
		if ws.Path == "" {
			continue
		}
		if ws.Path == root {
			return ws
		}
		if nested == nil && PathWithin(ws.Path, root) {
			nested = ws
		}
	}
	return nested
}
