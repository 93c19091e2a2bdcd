package uiflow

import (
	"fmt"

	"github.com/petrijr/uiflow/pkg/api"
)

// FlowBuilder provides a fluent API for defining flows:
//
//	flow := uiflow.New("install-app").
//	    Step("install", installApp).
//	    StepWithRetry("verify", verifyInstalled, uiflow.Retry(3).WithDelay(2*time.Second).Policy()).
//	    Step("disable-provisioning", disableProvisioning)
//
//	if err := flow.Register(engine); err != nil {
//	    log.Fatal(err)
//	}
//
//	run, err := uiflow.Run(ctx, engine, flow.Name(), input)
type FlowBuilder struct {
	def api.FlowDefinition
}

// New creates a new flow builder with the given name.
func New(name string) *FlowBuilder {
	return &FlowBuilder{
		def: api.FlowDefinition{
			Name:  name,
			Steps: make([]api.StepDefinition, 0),
		},
	}
}

// Name returns the flow name.
func (b *FlowBuilder) Name() string {
	return b.def.Name
}

// Definition returns the underlying FlowDefinition.
// Typically used when interacting with lower-level APIs.
func (b *FlowBuilder) Definition() FlowDefinition {
	return b.def
}

// Step appends a single-attempt step to the flow.
func (b *FlowBuilder) Step(name string, fn StepFunc) *FlowBuilder {
	b.add(name, fn, nil)
	return b
}

// StepWithRetry appends a step that uses the given retry policy.
func (b *FlowBuilder) StepWithRetry(name string, fn StepFunc, retry RetryPolicy) *FlowBuilder {
	// Copy so callers can mutate their RetryPolicy after the call
	// without affecting the stored definition.
	r := retry
	b.add(name, fn, &r)
	return b
}

// Sleep appends a step that waits for d and passes its input through.
func (b *FlowBuilder) Sleep(name string, d Duration) *FlowBuilder {
	return b.Step(name, SleepStep(d))
}

func (b *FlowBuilder) add(name string, fn StepFunc, retry *RetryPolicy) {
	if name == "" {
		panic("uiflow: step name must not be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("uiflow: step %q has nil function", name))
	}
	b.def.Steps = append(b.def.Steps, api.StepDefinition{
		Name:  name,
		Fn:    fn,
		Retry: retry,
	})
}

// Register registers the built flow with the given engine.
func (b *FlowBuilder) Register(eng Engine) error {
	return eng.RegisterFlow(b.def)
}

// MustRegister is like Register but panics on error.
// Useful for initialization in main().
func (b *FlowBuilder) MustRegister(eng Engine) {
	if err := b.Register(eng); err != nil {
		panic(err)
	}
}
