package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), " req-1 ")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "", RequestIDFromContext(context.Background()))
	assert.Equal(t, context.Background(), WithRequestID(context.Background(), "  "))
}

func TestActorRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), "system", "scheduler")
	typ, id := ActorFromContext(ctx)
	assert.Equal(t, "system", typ)
	assert.Equal(t, "scheduler", id)
}
