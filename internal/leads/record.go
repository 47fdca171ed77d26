package leads

import (
	"fmt"
	"time"

	"github.com/rosalabs/voice-agent/internal/transcript"
)

// Record is the structured lead payload assembled from a saveLead tool
// invocation plus the transcript at time of capture. Created once,
// immutable, handed to the store exactly once per successful invocation.
type Record struct {
	ContactName       string `json:"contactName"`
	CompanyName       string `json:"companyName"`
	Industry          string `json:"industry,omitempty"`
	CompanySize       string `json:"companySize,omitempty"`
	PainPoint         string `json:"painPoint,omitempty"`
	Email             string `json:"email"`
	Phone             string `json:"phone,omitempty"`
	Website           string `json:"website,omitempty"`
	MeetingPreference string `json:"meetingPreference,omitempty"`

	ConversationHistory []transcript.Item `json:"conversationHistory"`
	CreatedAt           time.Time         `json:"createdAt"`
}

// Result is the structured outcome returned to the remote agent as the
// tool response
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// RecordFromArgs builds a Record from tool invocation arguments and the
// finalized transcript history. Required fields must be present and
// non-empty.
func RecordFromArgs(args map[string]any, history []transcript.Item) (Record, error) {
	rec := Record{
		ContactName:         stringArg(args, "contactName"),
		CompanyName:         stringArg(args, "companyName"),
		Industry:            stringArg(args, "industry"),
		CompanySize:         stringArg(args, "companySize"),
		PainPoint:           stringArg(args, "painPoint"),
		Email:               stringArg(args, "email"),
		Phone:               stringArg(args, "phone"),
		Website:             stringArg(args, "website"),
		MeetingPreference:   stringArg(args, "meetingPreference"),
		ConversationHistory: history,
		CreatedAt:           time.Now(),
	}

	if rec.ContactName == "" || rec.CompanyName == "" || rec.Email == "" {
		return Record{}, fmt.Errorf("missing required lead fields (contactName, companyName, email)")
	}

	return rec, nil
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
