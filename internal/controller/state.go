package controller

// Phase is the lifecycle of the current removal batch.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "running"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Level tells front-ends how to colour the status line.
type Level int

const (
	LevelInfo Level = iota
	LevelWorking
	LevelSuccess
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWorking:
		return "working"
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

const (
	StatusReady       = "Ready"
	StatusSelectFirst = "Please select images first."
	StatusWorking     = "Removing background, please wait..."
	StatusSuccess     = "Backgrounds removed successfully!"

	WarningExportMissing = "Export folder path is not set or does not exist."
	WarningOpenFailed    = "Failed to open the export folder."
)

// State is everything the user sees. It is only mutated by the Controller.
type State struct {
	Inputs          []string `json:"inputs"`
	Processed       []string `json:"processed"`
	ImportFolder    string   `json:"import_folder"`
	ExportFolder    string   `json:"export_folder"`
	Progress        int      `json:"progress"`
	ProgressVisible bool     `json:"progress_visible"`
	TriggerEnabled  bool     `json:"trigger_enabled"`
	Status          string   `json:"status"`
	Level           Level    `json:"level"`
	Warning         string   `json:"warning,omitempty"`
	Phase           Phase    `json:"phase"`
	BatchID         string   `json:"batch_id,omitempty"`
	LastError       string   `json:"last_error,omitempty"`
}

func (s State) clone() State {
	s.Inputs = append([]string(nil), s.Inputs...)
	s.Processed = append([]string(nil), s.Processed...)
	return s
}
