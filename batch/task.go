// Package batch discovers source images, converts them on a bounded worker
// pool and aggregates the per-file outcomes into a summary.
package batch

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("input directory not found")
	ErrDecode   = errors.New("decode failed")
	ErrEncode   = errors.New("encode failed")
	ErrWrite    = errors.New("write failed")
	ErrWorker   = errors.New("worker failure")
	ErrTimeout  = errors.New("conversion timed out")
)

// SourceFile is a discovered input image.
type SourceFile struct {
	Path    string
	RelPath string
}

type Task struct {
	Source SourceFile
	Dest   string
}

type Status int

const (
	StatusSuccess Status = iota + 1
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	}
	return "unknown"
}

// Outcome is the result of exactly one Task.
type Outcome struct {
	Task     Task
	Status   Status
	Err      error
	Started  time.Time
	Duration time.Duration
}

func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// PlanTasks maps every source file onto outputRoot, keeping its relative
// path and swapping the extension for ext.
func PlanTasks(files []SourceFile, outputRoot, ext string) []Task {
	tasks := make([]Task, len(files))
	for i, f := range files {
		tasks[i] = Task{Source: f, Dest: DestPath(outputRoot, f.RelPath, ext)}
	}
	return tasks
}

func DestPath(outputRoot, relPath, ext string) string {
	base := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	return filepath.Join(outputRoot, base+ext)
}
