package store

import (
	"os"
	"syscall"
	"testing"
)

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}

func osMkdirAllForTest(dir string) error {
	return os.MkdirAll(dir, DefaultDirPermissions)
}

func dirExistsForTest(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
