package taskkit_test

import (
	"fmt"

	"github.com/taskkit/taskkit"
)

// ExampleInitialize demonstrates the quick-start flow from doc.go: spawn a
// task that yields once, then drive it to completion with a single
// UpdateActivatedScheduler call.
func ExampleInitialize() {
	rt := taskkit.Initialize(taskkit.WithThreadPoolSize(1), taskkit.WithMainThreadSchedulerCount(1))
	defer taskkit.Shutdown()

	id := rt.GetMainThreadSchedulerIds()[0]
	mainThread := id.ThreadID()
	deactivate := rt.ActivateScheduler(mainThread, id)
	defer deactivate()

	tk := taskkit.New(rt.Spawn(mainThread), func(c *taskkit.Ctx) (int, error) {
		fmt.Println("task started")
		if err := c.Yield(); err != nil {
			return 0, err
		}
		fmt.Println("task resumed")
		return 42, nil
	})

	rt.UpdateActivatedScheduler(mainThread)

	v, err := tk.Result()
	if err != nil {
		panic(err)
	}
	fmt.Println("result:", v)

	// Output:
	// task started
	// task resumed
	// result: 42
}
