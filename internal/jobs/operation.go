package jobs

// OperationStatus is the in-memory state of one operation.
type OperationStatus string

const (
	OperationPending   OperationStatus = "pending"
	OperationRunning   OperationStatus = "running"
	OperationCompleted OperationStatus = "completed"
	OperationFailed    OperationStatus = "failed"
)

// Operation is one transcoding unit inside a job. Only the aggregate job
// progress is durable; operation state lives in memory while the job runs.
type Operation struct {
	ID       string          `json:"id"`
	Index    int             `json:"index"`
	Type     ExportType      `json:"type"`
	Status   OperationStatus `json:"status"`
	Progress float64         `json:"progress"`
	Input    string          `json:"input,omitempty"`
	Output   string          `json:"output,omitempty"`
	Export   Export          `json:"export"`
}
