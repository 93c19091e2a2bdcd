package persistence

// Persistence bundles the store interfaces so the engine
// can depend on a single abstraction.
type Persistence struct {
	Flows    FlowStore
	Runs     RunStore
	Attempts AttemptStore
}
