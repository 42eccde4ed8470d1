package constants

// RunStatus is the canonical status for rows in pipe_run.
type RunStatus string

// Stable values (store these exact strings in DB).
const (
	RunStatusQueued    RunStatus = "QUEUED"    // accepted by the batch queue
	RunStatusRunning   RunStatus = "RUNNING"   // in progress
	RunStatusSucceeded RunStatus = "SUCCEEDED" // pipe result produced
	RunStatusFailed    RunStatus = "FAILED"    // terminal failure
)

// Pipe modes a caller can request.
const (
	ModeAuto = "auto"
	ModeTXT  = "txt"
	ModeOCR  = "ocr"
)

// Parse type tags written into every extraction result.
const (
	ParseTypeTXT = "txt"
	ParseTypeOCR = "ocr"
)
