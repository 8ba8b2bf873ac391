// Package dispatch runs plugin callbacks behind a recover boundary.
//
// A panicking callback is turned into a Result with Panicked set and the
// stack captured, so one misbehaving plugin cannot take the process down:
//
//	exec := dispatch.NewExecutor(dispatch.WithLogger(logger))
//	res := exec.ExecuteWithTimeout(ctx, "chat.tick", func(ctx context.Context) error {
//	    return p.Tick(ctx, pc, dt)
//	}, time.Second)
//	if err := res.Err(); err != nil {
//	    // crash the plugin
//	}
//
// Timeouts are advisory. The callback's context is cancelled when the
// deadline passes, but the executor waits for it to return.
package dispatch
