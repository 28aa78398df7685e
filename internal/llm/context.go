package llm

import "context"

type purposeKey struct{}

// PurposeTaskFeedback labels requests made to assess a single task.
const PurposeTaskFeedback = "task-feedback"

// WithPurpose labels the calls made with ctx for the request log.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey{}, purpose)
}

// PurposeFrom returns the purpose label of ctx, or "unknown".
func PurposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey{}).(string); ok {
		return v
	}
	return "unknown"
}
