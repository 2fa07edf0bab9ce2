package flow

import "context"

// frame tracks one running workflow: its id and the monotonically bumped
// step ordinal that keys activity memoization and signal binding.
type frame struct {
	workflowID string
	step       int
}

// next returns the ordinal for the next step. The first step is 1.
func (f *frame) next() int {
	f.step++
	return f.step
}

type frameKey struct{}

// pushFrame layers a new workflow frame onto ctx. Nested workflows stack;
// primitives always address the innermost frame.
func pushFrame(ctx context.Context, workflowID string) context.Context {
	stack, _ := ctx.Value(frameKey{}).([]*frame)
	next := make([]*frame, len(stack), len(stack)+1)
	copy(next, stack)
	next = append(next, &frame{workflowID: workflowID})
	return context.WithValue(ctx, frameKey{}, next)
}

// currentFrame returns the innermost workflow frame.
func currentFrame(ctx context.Context) (*frame, bool) {
	stack, _ := ctx.Value(frameKey{}).([]*frame)
	if len(stack) == 0 {
		return nil, false
	}
	return stack[len(stack)-1], true
}

// CurrentWorkflowID returns the id of the workflow the context is running
// inside, if any. Handy for logging from activity bodies.
func CurrentWorkflowID(ctx context.Context) (string, bool) {
	fr, ok := currentFrame(ctx)
	if !ok {
		return "", false
	}
	return fr.workflowID, true
}
