package models

const (
	RainMessage = "RAIN in the forecast for this week!"
	DryMessage  = "NO RAIN in the forecast for this week!"
)

// RunResult is what one completed pipeline run reports back to its caller.
type RunResult struct {
	RunID   string `json:"run_id"`
	City    string `json:"city"`
	Raining bool   `json:"raining"`
	Message string `json:"message"`
}
