package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// StoragePaths holds the detected paths for the editor's storage
type StoragePaths struct {
	WorkspaceStorage string // workspaceStorage directory
	GlobalStorage    string // globalStorage directory
	BasePath         string // Base User directory
}

// DetectStoragePaths detects the storage paths based on the operating system
func DetectStoragePaths() (StoragePaths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return StoragePaths{}, fmt.Errorf("failed to get home directory: %w", err)
	}

	var basePath string
	switch runtime.GOOS {
	case "darwin":
		basePath = filepath.Join(home, "Library/Application Support/Cursor/User")
	case "linux":
		basePath = filepath.Join(home, ".config/Cursor/User")
	case "windows":
		basePath = filepath.Join(os.Getenv("APPDATA"), "Cursor", "User")
	default:
		return StoragePaths{}, fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}

	return StoragePathsAt(basePath), nil
}

// StoragePathsAt returns the layout rooted at an explicit User directory
func StoragePathsAt(basePath string) StoragePaths {
	return StoragePaths{
		WorkspaceStorage: filepath.Join(basePath, "workspaceStorage"),
		GlobalStorage:    filepath.Join(basePath, "globalStorage"),
		BasePath:         basePath,
	}
}

// GetGlobalStorageDBPath returns the path to the globalStorage state.vscdb file
func (sp StoragePaths) GetGlobalStorageDBPath() string {
	return filepath.Join(sp.GlobalStorage, "state.vscdb")
}

// GlobalStorageExists checks if the globalStorage database exists
func (sp StoragePaths) GlobalStorageExists() bool {
	_, err := os.Stat(sp.GetGlobalStorageDBPath())
	return err == nil
}
