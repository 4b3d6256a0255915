package platform

import (
	"fmt"
	"os"
	"path/filepath"
)

type osFilesystem struct{}

func newOSFilesystem() Filesystem { return osFilesystem{} }

func (osFilesystem) ListDir(path string) ([]FileMetadata, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("list dir %s: %w", path, err)
	}
	out := make([]FileMetadata, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, fileMetadataFromInfo(info))
	}
	return out, nil
}

func (osFilesystem) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}
	return data, nil
}

func (osFilesystem) WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write file %s: %w", path, err)
	}
	return nil
}

func (osFilesystem) Delete(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (osFilesystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (osFilesystem) Metadata(path string) (FileMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return fileMetadataFromInfo(info), nil
}

func fileMetadataFromInfo(info os.FileInfo) FileMetadata {
	return FileMetadata{
		Name:        info.Name(),
		IsDir:       info.IsDir(),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		Permissions: info.Mode().Perm().String(),
	}
}
