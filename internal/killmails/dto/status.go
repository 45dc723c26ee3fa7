package dto

import "time"

// IngestStatusInput is the GET /killmails/ingest/status request.
type IngestStatusInput struct{}

// IngestMetrics are the ingester's atomic counters.
type IngestMetrics struct {
	TotalPolls     int64 `json:"total_polls"`
	NullResponses  int64 `json:"null_responses"`
	Stored         int64 `json:"stored"`
	Duplicates     int64 `json:"duplicates"`
	Rejected       int64 `json:"rejected"`
	Malformed      int64 `json:"malformed"`
	HTTPErrors     int64 `json:"http_errors"`
	StoreErrors    int64 `json:"store_errors"`
	LastKillmailID int64 `json:"last_killmail_id,omitempty"`
	CurrentTTW     int   `json:"current_ttw"`
	NullStreak     int   `json:"null_streak"`
}

// IngestStatusResponse describes the ingester's current state.
type IngestStatusResponse struct {
	Status       string        `json:"status"`
	QueueID      string        `json:"queue_id"`
	LastPoll     *time.Time    `json:"last_poll,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	ErrorBudget  int           `json:"error_budget"`
	Metrics      IngestMetrics `json:"metrics"`
	Message      string        `json:"message"`
}

// IngestStatusOutput wraps the status response.
type IngestStatusOutput struct {
	Body IngestStatusResponse
}

// IngestControlInput is the POST /killmails/ingest/control request.
type IngestControlInput struct {
	Body struct {
		Action string `json:"action" enum:"start,stop,restart" doc:"Control action to apply to the ingester"`
	}
}

// IngestControlResponse reports the result of a control action.
type IngestControlResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// IngestControlOutput wraps the control response.
type IngestControlOutput struct {
	Body IngestControlResponse
}
