package common

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// imageInputs are the repo paths that end up in the worker image. Only
// these feed the image tag, so editing infra or docs does not force a rebuild.
var imageInputs = []string{"go.mod", "go.sum", "cmd", "internal", "pkg"}

// GenerateHash hashes the image inputs under root.
func GenerateHash(root string) (string, error) {
	var files []string
	for _, in := range imageInputs {
		err := filepath.Walk(filepath.Join(root, in), func(path string, info os.FileInfo, err error) error {
			if os.IsNotExist(err) {
				return nil
			}
			if err != nil {
				return err
			}
			if !info.IsDir() && info.Mode()&os.ModeSymlink == 0 {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return "", err
		}
	}
	sort.Strings(files)

	h := md5.New()
	for _, f := range files {
		fh, err := fileHash(f)
		if err != nil {
			return "", err
		}
		io.WriteString(h, f)
		io.WriteString(h, fh)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func fileHash(file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
