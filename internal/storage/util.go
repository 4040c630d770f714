package storage

import "os"

// EnsureDir creates the directory that holds a store file.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
