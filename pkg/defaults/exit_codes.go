package defaults

// Exit codes for the CLI.
const (
	ExitSuccess       = 0 // Clean exit, no findings
	ExitFindings      = 1 // Scan completed with likely or confirmed findings
	ExitUserError     = 2 // Invalid arguments or configuration
	ExitTargetError   = 3 // Origin unreachable on first contact
	ExitInternalError = 4 // Unexpected internal error
)
