package auth

import (
	"context"

	"github.com/dukerupert/tally/internal/model"
)

type contextKey struct{}

// Actor is the verified caller identity attached to a request. The identity
// is established by the external authentication gateway; this service only
// consumes its verdict.
type Actor struct {
	MemberID int64
	FamilyID int64
	Role     string
}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(contextKey{}).(Actor)
	return a, ok
}

func MemberID(ctx context.Context) int64 {
	a, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return a.MemberID
}

func FamilyID(ctx context.Context) int64 {
	a, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return a.FamilyID
}

func IsParent(ctx context.Context) bool {
	a, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return a.Role == model.RoleParent
}
