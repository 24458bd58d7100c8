package job

import (
	"encoding/json"
	"time"
)

// Job is an ingestion task that failed terminally, kept with its original
// payload so an operator can republish it.
type Job struct {
	ID        string          `json:"id"`
	JobID     string          `json:"job_id"`
	Handler   string          `json:"handler"`
	Status    string          `json:"status"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Attempts  int             `json:"attempts"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"created_at"`
}
