package api_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/petrijr/uiflow/pkg/api"
)

// ExampleDoValue retries a flaky read until it succeeds.
func ExampleDoValue() {
	exec := api.NewExecutor(api.WithObserver(api.NoopObserver{}))

	calls := 0
	status, err := api.DoValue(context.Background(), exec, "read status",
		api.RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond},
		func(ctx context.Context) (string, error) {
			calls++
			if calls < 2 {
				return "", errors.New("not rendered yet")
			}
			return "Installed", nil
		})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(status, calls)
	// Output: Installed 2
}

// ExampleExtractErrors falls back to generic messages when no
// property-level errors are shown.
func ExampleExtractErrors() {
	primary := func(ctx context.Context) ([]string, error) { return nil, nil }
	fallback := func(ctx context.Context) ([]string, error) {
		return []string{"  Action  failed ", "Action failed"}, nil
	}

	errs, _ := api.ExtractErrors(context.Background(), primary, fallback, 5)
	fmt.Println(api.FormatErrors("Create ticket", errs))
	// Output:
	// Validation errors for "Create ticket":
	//   - Action failed
}
