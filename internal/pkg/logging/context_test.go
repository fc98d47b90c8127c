package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) != zap.L() {
		t.Error("empty context should fall back to the global logger")
	}

	l := zap.NewNop()
	ctx := ContextWithLogger(context.Background(), l)
	if FromContext(ctx) != l {
		t.Error("stored logger not returned")
	}
	if ContextWithLogger(ctx, nil) != ctx {
		t.Error("nil logger should leave the context unchanged")
	}
}
