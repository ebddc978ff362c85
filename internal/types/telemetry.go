package types

// Telemetry metric names for CloudWatch.
const (
	// Metric Names
	MetricAPILatency         = "APILatency"
	MetricAPIRequestCount    = "APIRequestCount"
	MetricQuotaDecision      = "QuotaDecision"
	MetricQuotaStoreFailure  = "QuotaStoreFailure"
	MetricExternalAPIFailure = "ExternalAPIFailure"

	// Dimension Keys
	DimEndpoint = "Endpoint"
	DimMethod   = "Method"
	DimStatus   = "Status"
	DimPlan     = "Plan"
	DimResult   = "Result"
	DimProvider = "Provider"

	// Metric Namespace
	MetricNamespace = "SkyCheck"
)
