package processor

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	badChars    = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]`)
	multiSpaces = regexp.MustCompile(`\s{2,}`)
)

// sanitizeComponent makes s safe as a single path component on
// Windows, Linux and macOS.
func sanitizeComponent(s string) string {
	res := norm.NFC.String(s)
	res = badChars.ReplaceAllString(res, "_")
	res = multiSpaces.ReplaceAllString(res, " ")

	// Windows refuses trailing dots and spaces
	res = strings.TrimRight(strings.TrimSpace(res), ".")
	if res == "" {
		return "_"
	}
	return res
}

// moveCrossDevice handles moving files between different mount points/filesystems
func moveCrossDevice(sourcePath, destPath string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()

	tempDest := filepath.Join(filepath.Dir(destPath), "."+filepath.Base(destPath)+".tmp")

	dst, err := os.Create(tempDest)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err = io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tempDest)
		return err
	}

	if err = dst.Sync(); err != nil {
		dst.Close()
		os.Remove(tempDest)
		return err
	}

	// Explicitly close before renaming and deleting the source
	src.Close()
	dst.Close()

	if err = os.Rename(tempDest, destPath); err != nil {
		os.Remove(tempDest)
		return err
	}

	// Remove the original file only after copy success
	return os.Remove(sourcePath)
}

// moveFile renames source to dest, falling back to a copy across devices.
func moveFile(source, dest string) error {
	err := os.Rename(source, dest)
	if err == nil {
		return nil
	}
	if _, statErr := os.Stat(source); statErr != nil {
		return err
	}
	return moveCrossDevice(source, dest)
}
