package internal

const (
	StatusQueued  = "queued"
	StatusSuccess = "success"
	StatusError   = "error"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`

	JobId  string       `json:"jobId,omitempty"`
	Errors []FieldError `json:"errors,omitempty"`
}
