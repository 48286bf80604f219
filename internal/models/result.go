// -----------------------------------------------------------------------
// Operation Result - ok-flag results on the host-ward surface
// -----------------------------------------------------------------------

package models

// OpResult is the structured result of a supervisor operation exposed to
// the presentation layer. Operations report rejection through OK=false
// and a human message rather than an error.
type OpResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Job     *Job   `json:"job,omitempty"`
}

// ResultOK builds a success result.
func ResultOK(message string, job *Job) OpResult {
	return OpResult{OK: true, Message: message, Job: job}
}

// ResultErr builds a rejection result.
func ResultErr(message string) OpResult {
	return OpResult{OK: false, Message: message}
}

// HealthSummary is the supervisor's health snapshot.
type HealthSummary struct {
	LiveEngines      int `json:"live_engines"`
	RunningJobs      int `json:"running_jobs"`
	TotalJobs        int `json:"total_jobs"`
	UnresolvedErrors int `json:"unresolved_errors"`
	CriticalErrors   int `json:"critical_errors"`
	Errors24h        int `json:"errors_24h"`
}
