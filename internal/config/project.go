package config

import (
	"os"
	"path/filepath"
)

// FindProjectRoot looks for the .skillforge directory starting from the current
// working directory and moving up the directory tree
func FindProjectRoot() (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := currentDir
	for {
		if _, err := os.Stat(GetForgeDir(dir)); err == nil {
			return dir, nil
		}

		parentDir := filepath.Dir(dir)
		if parentDir == dir {
			break
		}
		dir = parentDir
	}

	// If no .skillforge directory found, return current directory
	return currentDir, nil
}

// GetForgeDir returns the path to the .skillforge directory relative to the project root
func GetForgeDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".skillforge")
}

// EnsureForgeDirs creates the necessary .skillforge subdirectories
func EnsureForgeDirs(forgeDir string) error {
	subdirs := []string{
		filepath.Join(forgeDir, "logs"),
		filepath.Join(forgeDir, "store"),
	}

	for _, subdir := range subdirs {
		if err := os.MkdirAll(subdir, 0755); err != nil {
			return err
		}
	}

	return nil
}
