package main

import "errors"

// Workflow failure conditions. Each workflow catches internal failures at its
// own boundary and wraps them in exactly one of these, so callers get a single
// classifiable error per run.
var (
	ErrNoFileSelected      = errors.New("no file selected")
	ErrUploadFailed        = errors.New("upload failed")
	ErrExtractionFailed    = errors.New("could not extract energy data from the file")
	ErrPersistenceFailed   = errors.New("saving records failed")
	ErrNoDataAvailable     = errors.New("no energy data available")
	ErrAIInvocationFailed  = errors.New("AI analysis failed")
	ErrWorkflowBusy        = errors.New("another run is already in progress")
	ErrOptimizationTimeout = errors.New("optimization timed out")
)
