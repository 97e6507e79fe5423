package processing

import "fmt"

// WebhookRequest is the raw callback body. Shapes vary across worker
// integrations, so it is decoded permissively here and then validated into
// exactly one CallbackOutcome variant — anything in between is rejected.
type WebhookRequest struct {
	FileID   string `json:"fileId" binding:"required"`
	Status   string `json:"status" binding:"required,oneof=success error"`
	Notes    string `json:"notes"`
	NoteType string `json:"noteType"`
	Error    string `json:"error"`
}

// Outcome narrows the request to a closed variant, enforcing that success
// callbacks carry notes and nothing else, and error callbacks carry a
// message and nothing else.
func (r WebhookRequest) Outcome() (CallbackOutcome, map[string]string) {
	fieldErrors := map[string]string{}
	switch r.Status {
	case "success":
		if r.Notes == "" {
			fieldErrors["notes"] = "is required when status is success"
		}
		if r.Error != "" {
			fieldErrors["error"] = "must be empty when status is success"
		}
		if len(fieldErrors) > 0 {
			return nil, fieldErrors
		}
		return CallbackSuccess{Notes: r.Notes, NoteType: r.NoteType}, nil
	case "error":
		if r.Error == "" {
			fieldErrors["error"] = "is required when status is error"
		}
		if r.Notes != "" {
			fieldErrors["notes"] = "must be empty when status is error"
		}
		if len(fieldErrors) > 0 {
			return nil, fieldErrors
		}
		return CallbackFailure{Message: r.Error}, nil
	default:
		fieldErrors["status"] = fmt.Sprintf("unknown status %q", r.Status)
		return nil, fieldErrors
	}
}
