package runner

import (
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
)

// sessionLog appends lines to a capped log file. Once the cap is hit a
// single marker line is written and further output is dropped; the
// invocation itself keeps running.
type sessionLog struct {
	mu        sync.Mutex
	file      *os.File
	written   int64
	truncated bool
}

func newSessionLog(path string) *sessionLog {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Errorf("Failed to open session log %s: %v", path, err)
		return &sessionLog{}
	}
	return &sessionLog{file: file}
}

func (s *sessionLog) WriteLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil || s.truncated {
		return
	}
	if s.written+int64(len(line))+1 > maxOutputBytes {
		s.truncated = true
		s.file.WriteString(truncationMarker + "\n")
		return
	}
	n, err := s.file.WriteString(line + "\n")
	if err != nil {
		log.Errorf("Session log write failed: %v", err)
		return
	}
	s.written += int64(n)
}

func (s *sessionLog) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
}
