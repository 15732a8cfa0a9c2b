// Package presenter maps pipeline state to what the user should see.
package presenter

import "github.com/maauso/audiosplit/internal/segment"

// View is the presentation state derived from the pipeline.
type View string

// Views, in the order the user normally meets them.
const (
	AwaitingEngine   View = "awaiting-engine"
	AwaitingFile     View = "awaiting-file"
	ReadyToProcess   View = "ready-to-process"
	Processing       View = "processing"
	ResultsAvailable View = "results-available"
	Failed           View = "failed"
)

// FailureNotice is the message shown after a failed run. Details go to the log.
const FailureNotice = "Error processing audio. See logs for details."

// Input is the pipeline state a View is derived from.
type Input struct {
	EngineReady bool
	HasFile     bool
	RunStatus   segment.Status
	Segments    int
}

// Derive maps in to a View. It has no side effects.
func Derive(in Input) View {
	switch {
	case in.RunStatus == segment.StatusRunning:
		return Processing
	case !in.EngineReady:
		return AwaitingEngine
	case !in.HasFile:
		return AwaitingFile
	case in.Segments > 0:
		return ResultsAvailable
	case in.RunStatus == segment.StatusFailed:
		return Failed
	default:
		return ReadyToProcess
	}
}

// CanStart reports whether the start trigger is enabled.
func (v View) CanStart() bool {
	return v == ReadyToProcess || v == Failed || v == ResultsAvailable
}

// CanDownload reports whether the download triggers are enabled.
func (v View) CanDownload() bool {
	return v == ResultsAvailable
}

// Notice returns the user-facing message for in, if any. A failed rerun keeps
// the earlier results on screen, so the notice follows the run, not the View.
func Notice(in Input) string {
	if in.HasFile && in.RunStatus == segment.StatusFailed {
		return FailureNotice
	}
	return ""
}
