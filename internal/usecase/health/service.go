package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded means the database answers but the store breaker is not closed.
	Degraded Status = "degraded"
	// Unhealthy means the database is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db    DBPinger
	store StoreChecker
}

// New creates a Service. store can be nil.
func New(db DBPinger, store StoreChecker) *Service {
	return &Service{db: db, store: store}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
		status = Unhealthy
	} else {
		checks["database"] = CheckOK
	}

	if s.store != nil {
		if err := s.store.HealthCheck(ctx); err != nil {
			checks["store_breaker"] = CheckError
			if status == Healthy {
				status = Degraded
			}
		} else {
			checks["store_breaker"] = CheckOK
		}
	}

	return Report{Status: status, Checks: checks}
}
