package errors

// Stable error codes used across the supervisor.
const (
	// CodeWatchSetup indicates a watch root could not be observed.
	CodeWatchSetup = "E101"

	// CodeWatchNoRoots indicates no watch root was observable at all.
	CodeWatchNoRoots = "E102"

	// CodeStartupTimeout indicates the application never became ready.
	CodeStartupTimeout = "E201"

	// CodeCrash indicates the application exited outside a supervisor stop.
	CodeCrash = "E202"

	// CodeSpawn indicates the application process could not be launched.
	CodeSpawn = "E203"

	// CodePortInUse indicates the application address never freed up.
	CodePortInUse = "E204"

	// CodeDelivery indicates a notification could not reach one client.
	CodeDelivery = "E301"

	// CodeConfig indicates invalid configuration.
	CodeConfig = "E401"
)

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	CodeWatchSetup: {
		Category:   CategoryWatch,
		Message:    "Watch root is not observable",
		Suggestion: "Check that the directory exists and is readable.",
	},
	CodeWatchNoRoots: {
		Category:   CategoryWatch,
		Message:    "No watch root could be observed",
		Suggestion: "At least one existing directory must be given to watch.",
	},
	CodeStartupTimeout: {
		Category:   CategoryProcess,
		Message:    "Application did not become ready in time",
		Suggestion: "Check that the application binds its configured address on startup.",
	},
	CodeCrash: {
		Category:   CategoryProcess,
		Message:    "Application exited unexpectedly",
		Suggestion: "Fix the error and save a file to trigger a fresh start.",
	},
	CodeSpawn: {
		Category: CategoryProcess,
		Message:  "Application process could not be started",
	},
	CodePortInUse: {
		Category:   CategoryProcess,
		Message:    "Application address is already in use",
		Suggestion: "Stop the process holding the port or change the configured port.",
	},
	CodeDelivery: {
		Category: CategoryDelivery,
		Message:  "Reload notification could not be delivered",
	},
	CodeConfig: {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
	},
}
