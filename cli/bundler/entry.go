// Package bundler compiles Pages Functions and worker entry files into a
// single deployable Worker, optionally packaged as a multipart bundle with
// externalized binary assets.
package bundler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// WorkerEntryName is the filename of a standalone worker entry at the
	// build output directory root.
	WorkerEntryName = "_worker.js"

	// FunctionsDirName is the directory of per-route handler files.
	FunctionsDirName = "functions"
)

// TargetKind identifies what kind of source the build compiles.
type TargetKind int

const (
	// TargetWorker builds a standalone worker entry file.
	TargetWorker TargetKind = iota
	// TargetFunctions builds a functions directory of per-route handlers.
	TargetFunctions
)

func (k TargetKind) String() string {
	switch k {
	case TargetWorker:
		return "worker"
	case TargetFunctions:
		return "functions"
	default:
		return "unknown"
	}
}

// ErrNoBuildTarget is returned when neither a worker entry file nor a
// functions directory exists.
var ErrNoBuildTarget = errors.New("Could not find anything to build.")

// Target is a selected build entry point.
type Target struct {
	Kind TargetKind
	// Path is the worker entry file for TargetWorker, or the functions
	// directory for TargetFunctions.
	Path string
}

// SelectTarget decides what to build. Precedence is an ordered list evaluated
// top to bottom:
//
//  1. a _worker.js at the output directory root wins outright; a functions
//     directory is ignored entirely when both exist
//  2. a functions directory under workDir
//
// Falls through to ErrNoBuildTarget when neither matches. A configured output
// directory that does not exist fails the scan with the underlying
// filesystem error.
func SelectTarget(workDir, outputDir string) (Target, error) {
	if outputDir != "" {
		entries, err := os.ReadDir(outputDir)
		if err != nil {
			return Target{}, fmt.Errorf("scanning build output directory: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() && e.Name() == WorkerEntryName {
				return Target{Kind: TargetWorker, Path: filepath.Join(outputDir, WorkerEntryName)}, nil
			}
		}
	}

	fnDir := filepath.Join(workDir, FunctionsDirName)
	if info, err := os.Stat(fnDir); err == nil && info.IsDir() {
		return Target{Kind: TargetFunctions, Path: fnDir}, nil
	}

	return Target{}, ErrNoBuildTarget
}
