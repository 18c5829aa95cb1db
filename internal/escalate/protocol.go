// Package escalate sends commands that no deterministic rule matched to a
// Claude evaluator behind a Unix socket daemon. The daemon keeps SDK startup
// cost out of the hook's hot path.
package escalate

// EvalRequest is sent from the hook to the daemon.
type EvalRequest struct {
	Command string `json:"command"`
	WorkDir string `json:"work_dir"`
}

// EvalResponse is the daemon's verdict. Decision is "ALLOW" or "ASK".
type EvalResponse struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}
