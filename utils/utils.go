package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// NewLog opens <dir><name>.log for appending. An empty dir logs to stderr.
func NewLog(dir, name string) *log.Logger {
	if dir == "" {
		return log.New(os.Stderr, fmt.Sprintf("[%s] ", name), log.LstdFlags|log.Lmicroseconds)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		panic(err)
	}
	fileName := filepath.Join(dir, fmt.Sprintf("%s.log", name))
	file, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		panic(err)
	}
	log := log.New(file, "", log.LstdFlags|log.Lmicroseconds)
	return log
}

// Discard is a logger for tests and for components that were not given one.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
