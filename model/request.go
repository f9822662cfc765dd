package model

// Vehicle is the motion-layer handle attached to a request. The scheduler
// only ever appends granted primitives and toggles the pause directive.
type Vehicle interface {
	// Enqueue appends granted primitives to the vehicle's motion queue.
	Enqueue(ids ...PrimitiveID)
	// Pause appends the indefinite-hold directive if not already present.
	Pause()
	// Resume drops the indefinite-hold directive.
	Resume()
}

// Request asks the scheduler for a route from Start to Goal on behalf of an
// agent. Requests are re-queued with an updated Start as partial progress is
// granted.
type Request struct {
	AgentID string
	Start   State
	Goal    State
	Vehicle Vehicle

	// SubmittedAt is the simulation time the request was first submitted.
	SubmittedAt float64
}
