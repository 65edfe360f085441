package audit

import "time"

// BreakdownDimension defines valid group-by dimensions.
type BreakdownDimension string

const (
	// BreakdownByOperation groups by operation.
	BreakdownByOperation BreakdownDimension = "operation"

	// BreakdownByService groups by service name.
	BreakdownByService BreakdownDimension = "service"

	// BreakdownByErrorKind groups by failure kind.
	BreakdownByErrorKind BreakdownDimension = "error_kind"

	// BreakdownByTransport groups by transport.
	BreakdownByTransport BreakdownDimension = "transport"
)

// ValidBreakdownDimensions is the set of allowed group-by values.
var ValidBreakdownDimensions = map[BreakdownDimension]bool{
	BreakdownByOperation: true,
	BreakdownByService:   true,
	BreakdownByErrorKind: true,
	BreakdownByTransport: true,
}

// BreakdownFilter controls breakdown query parameters.
type BreakdownFilter struct {
	GroupBy   BreakdownDimension
	Limit     int
	StartTime *time.Time
	EndTime   *time.Time
}

// BreakdownEntry holds aggregated stats for a single dimension value.
type BreakdownEntry struct {
	Dimension     string  `json:"dimension"`
	Count         int     `json:"count"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// Overview holds aggregate statistics for the audit log.
type Overview struct {
	TotalOperations int     `json:"total_operations"`
	SuccessRate     float64 `json:"success_rate"`
	AvgDurationMS   float64 `json:"avg_duration_ms"`
	UniqueServices  int     `json:"unique_services"`
	Saves           int     `json:"saves"`
	Conflicts       int     `json:"conflicts"`
	ErrorCount      int     `json:"error_count"`
}
