package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracing_DisabledIsNoop(t *testing.T) {
	tp, err := InitTracing(context.Background(), Config{ServiceName: "composite-service"})
	require.NoError(t, err)
	assert.NotNil(t, tp.Tracer())
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestStartProductSpan(t *testing.T) {
	ctx, span := StartProductSpan(context.Background(), "composite.get", 1)
	defer span.End()
	assert.NotNil(t, ctx)
}
