// Package storage abstracts the remote object store that session CSV files are
// uploaded to and fetched from.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CSVMimeType is the content type of session files
const CSVMimeType = "text/csv"

// ErrUnavailable means the provider could not be initialised (usually missing
// or rejected credentials). Every operation fails with it until restart.
var ErrUnavailable = errors.New("no storage service available")

// RemoteFile identifies one object in a remote folder
type RemoteFile struct {
	ID   string
	Name string
}

// Provider is a remote namespace of CSV objects.
type Provider interface {
	// List returns the objects of mimeType directly under folderID.
	List(ctx context.Context, folderID, mimeType string) ([]RemoteFile, error)
	// Upload stores localPath under parentFolderID and returns the new object id.
	// An empty parentFolderID targets the provider root.
	Upload(ctx context.Context, localPath, parentFolderID string) (string, error)
	// Download writes the content of object id to localPath.
	Download(ctx context.Context, id, localPath string) error
}

// writeFileAtomic copies r into path through a temporary file in the same
// directory so a partial download never looks like a finished one.
func writeFileAtomic(path string, r io.Reader) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move download into place: %w", err)
	}
	return nil
}
