package services

import (
	"fmt"
	"os"
	"time"
)

// readSessionFile loads a raw output log for parsing. Session logs are
// already capped at write time, so the whole file is safe to read.
func readSessionFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read session log: %w", err)
	}
	return string(raw), nil
}

func nowMilli() int64 {
	return time.Now().UnixMilli()
}
