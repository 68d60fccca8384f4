package types

// CloudWatch metric names and dimensions emitted by the lifecycle engine.
const (
	MetricAccountsChecked = "InactivityAccountsChecked"
	MetricAccountsWarned  = "InactivityAccountsWarned"
	MetricAccountsDeleted = "InactivityAccountsDeleted"
	MetricRunFailed       = "InactivityRunFailed"
	MetricRunDuration     = "InactivityRunDuration"

	DimTrigger = "Trigger"
	DimMode    = "Mode"

	MetricNamespace = "EduPlatform"
)
