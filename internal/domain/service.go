package domain

import (
	"regexp"
)

// ServiceKey identifies a quota-gated feature or action.
type ServiceKey string

// Known service keys. Administrators may add further keys at runtime; these are
// the ones the application itself gates on.
const (
	ServiceJobsCount         ServiceKey = "JOBS_COUNT"
	ServiceJobsSaved         ServiceKey = "JOBS_SAVED"
	ServiceAIResume          ServiceKey = "AI_RESUME"
	ServiceAICoverLetter     ServiceKey = "AI_COVER_LETTER"
	ServiceAIJobMatch        ServiceKey = "AI_JOB_MATCH"
	ServiceHunterEmailSearch ServiceKey = "HUNTER_EMAIL_SEARCH"
	ServiceResumeUpload      ServiceKey = "RESUME_UPLOAD"
)

var serviceKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// Valid reports whether k is a well-formed service key.
func (k ServiceKey) Valid() bool {
	return len(k) <= 64 && serviceKeyPattern.MatchString(string(k))
}

func (k ServiceKey) String() string {
	return string(k)
}

// LiveCount reports whether the key mirrors a live record count rather than
// accumulating consumption. Such counters are synced, never incremented, and
// survive quota resets.
func (k ServiceKey) LiveCount() bool {
	return k == ServiceJobsCount
}

// PreservedOnReset lists the counters carried across a quota reset.
var PreservedOnReset = []ServiceKey{ServiceJobsCount}

// ServiceDefinition describes a gated service.
type ServiceDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}
