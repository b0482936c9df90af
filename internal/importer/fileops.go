package importer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileOperation selects how a finished download enters the library.
type FileOperation string

const (
	OpMove     FileOperation = "move"
	OpCopy     FileOperation = "copy"
	OpHardlink FileOperation = "hardlink"
)

// ParseFileOperation maps a config string to an operation, defaulting to
// hardlink.
func ParseFileOperation(s string) FileOperation {
	switch FileOperation(s) {
	case OpMove, OpCopy, OpHardlink:
		return FileOperation(s)
	}
	return OpHardlink
}

// Execute places src at dst using the operation. Hardlink falls back to copy
// when the link fails (cross-device, unsupported FS). The destination
// directory must already exist.
func (op FileOperation) Execute(src, dst string) error {
	switch op {
	case OpMove:
		if err := os.Rename(src, dst); err == nil {
			return nil
		}
		// Rename fails across filesystems; copy then remove.
		if err := copyFile(src, dst); err != nil {
			return err
		}
		return os.Remove(src)
	case OpHardlink:
		if err := os.Link(src, dst); err == nil {
			return nil
		}
		return copyFile(src, dst)
	case OpCopy:
		return copyFile(src, dst)
	}
	return fmt.Errorf("unknown file operation %q", op)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	tmp := dst + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy to %s: %w", tmp, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

// ensureDir creates the parent directory of path.
func ensureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}
