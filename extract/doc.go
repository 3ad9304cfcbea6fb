// Package extract recovers typed values from free-form model output.
//
// Extract applies an ordered list of strategies (fenced code block, first
// balanced object, raw text) and validates required fields against a schema
// derived from the target type. InvokeStructured couples a gateway call with
// extraction, and Retrier wraps either in the shared retry-then-fallback
// policy every stage uses.
//
//	r := extract.NewRetrier(func(error) core.Critique {
//	    return core.Critique{Score: 1, Feedback: "evaluation unavailable", Degraded: true}
//	})
//	crit, outcome, err := r.Invoke(ctx, gw, prompt)
package extract
