package model

type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeFailed    OutcomeStatus = "failed"
)

type TaskOutcome struct {
	Task   string        `json:"task"`
	Status OutcomeStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
}

type AccountRunResult struct {
	Site          string        `json:"site"`
	AccountID     string        `json:"accountId"`
	Authenticated bool          `json:"authenticated"`
	Balance       string        `json:"balance,omitempty"`
	Outcomes      []TaskOutcome `json:"outcomes,omitempty"`
	Error         string        `json:"error,omitempty"`
}

func (r AccountRunResult) Count(status OutcomeStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

type RunState struct {
	RunID      string             `json:"runId,omitempty"`
	Running    bool               `json:"running"`
	StartedAt  int64              `json:"startedAtMs,omitempty"`
	FinishedAt int64              `json:"finishedAtMs,omitempty"`
	NextRunAt  int64              `json:"nextRunAtMs,omitempty"`
	Results    []AccountRunResult `json:"results"`
	LastError  string             `json:"lastError,omitempty"`
}
