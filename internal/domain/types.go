package domain

// JobStatus tracks each lifecycle stage for a single dubbing job.
type JobStatus string

const (
	JobStatusIdle      JobStatus = "idle"
	JobStatusStaging   JobStatus = "staging"
	JobStatusRunning   JobStatus = "running"
	JobStatusDone      JobStatus = "done"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// DeploymentMode selects how the engine executable is located and launched.
type DeploymentMode string

const (
	// DeploymentDevelopment runs the engine script through an interpreter.
	DeploymentDevelopment DeploymentMode = "development"
	// DeploymentPackaged runs a bundled engine binary from a staged copy.
	DeploymentPackaged DeploymentMode = "packaged"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	TargetLanguage string `json:"targetLanguage"`
	SourceLanguage string `json:"sourceLanguage"`
	LastInputDir   string `json:"lastInputDir"`
}

// JobRequest is the immutable input for one engine run.
type JobRequest struct {
	InputPath      string `json:"inputPath"`
	TargetLanguage string `json:"targetLanguage"`
	SourceLanguage string `json:"sourceLanguage,omitempty"`
}

// Job stores the current job identity and lifecycle status.
type Job struct {
	ID      string     `json:"id"`
	Status  JobStatus  `json:"status"`
	Request JobRequest `json:"request"`
}

// LanguageOption describes one target language offered by the UI.
type LanguageOption struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Native string `json:"native"`
}
