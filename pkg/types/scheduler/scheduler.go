package scheduler

// Scheduler is a background loop owned by a service.
type Scheduler interface {
	Start() error
	Stop()
}
