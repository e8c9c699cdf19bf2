package distributor

// Lifecycle Messages
const (
	logRunStarted   = "Run started"
	logRunCompleted = "Run completed"
	logRunFailed    = "Run failed"
	logTableReady   = "Prime table generated"

	logMetricsInitFailed = "Failed to initialize distributor metrics"
)

// Worker Messages
const (
	logWorkerLaunched     = "Worker launched"
	logWorkerRetired      = "Worker finished, retired"
	logWorkerLaunchFailed = "Failed to launch worker, reaping launched workers"
	logWorkerReapFailed   = "Failed to reap worker"
	logLateOutputIgnored  = "Output after end marker, ignoring"
)

// Collector Messages
const (
	logNothingReady = "No worker output ready, polling again"
	logFactorFound  = "Prime factor found"
	logFatalCollect = "Fatal error while collecting, reaping remaining workers"
)

// Debug Messages
const (
	logStateTransition = "State transition"
)
