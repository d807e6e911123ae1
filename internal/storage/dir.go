package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirProvider uses a local directory as the remote namespace. Folder ids are
// sub-directories of the root and object ids are paths relative to it.
type DirProvider struct {
	root string
}

// NewDirProvider creates the root directory if needed.
func NewDirProvider(root string) (*DirProvider, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &DirProvider{root: root}, nil
}

// folder resolves folderID inside the root; ".." cannot escape it.
func (p *DirProvider) folder(folderID string) string {
	return filepath.Join(p.root, filepath.Clean("/"+folderID))
}

// List returns regular files directly under folderID. For CSVMimeType only
// files with a .csv extension are returned.
func (p *DirProvider) List(ctx context.Context, folderID, mimeType string) ([]RemoteFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := p.folder(folderID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list folder %s: %w", folderID, err)
	}

	var files []RemoteFile
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if mimeType == CSVMimeType && !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		rel, err := filepath.Rel(p.root, filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		files = append(files, RemoteFile{ID: filepath.ToSlash(rel), Name: e.Name()})
	}
	return files, nil
}

// Upload copies localPath into the folder, replacing an existing object.
func (p *DirProvider) Upload(ctx context.Context, localPath, parentFolderID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()

	dir := p.folder(parentFolderID)
	dst := filepath.Join(dir, filepath.Base(localPath))
	if err := writeFileAtomic(dst, src); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", localPath, err)
	}
	rel, err := filepath.Rel(p.root, dst)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Download copies object id into localPath.
func (p *DirProvider) Download(ctx context.Context, id, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := os.Open(filepath.Join(p.root, filepath.Clean("/"+filepath.FromSlash(id))))
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", id, err)
	}
	defer src.Close()
	return writeFileAtomic(localPath, src)
}
