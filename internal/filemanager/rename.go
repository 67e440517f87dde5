package filemanager

import (
	"os"
	"runtime"
	"time"
)

// atomicRename moves src over dst. POSIX rename is atomic; Windows refuses to
// replace an open destination, so retry once after removing it.
func atomicRename(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || runtime.GOOS != "windows" {
		return err
	}
	_ = os.Remove(dst)
	time.Sleep(10 * time.Millisecond)
	return os.Rename(src, dst)
}
