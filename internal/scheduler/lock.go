package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// acquireRegionLock creates an advisory lock file at /tmp/{region}.lock
// non-blockingly: if the file already exists, the caller is told another
// instance is running rather than waiting, per §4.11. Unlike
// internal/store's position lock (which retries briefly to serialize
// writers within one process), this lock refuses outright, since a
// second instance of the whole cycle running concurrently for the same
// region is a configuration error, not a race to tolerate.
func acquireRegionLock(region string) (func(), error) {
	path := filepath.Join(os.TempDir(), region+".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("another instance running for region %q (lock %s held)", region, path)
		}
		return nil, fmt.Errorf("create region lock file: %w", err)
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	_ = f.Close()
	return func() { _ = os.Remove(path) }, nil
}
