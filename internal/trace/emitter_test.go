package trace

import (
	"testing"

	"github.com/goccy/go-json"

	"github.com/opengw/llmgateway/internal/canon"
)

func TestMarshalAttributes_Empty(t *testing.T) {
	got, err := marshalAttributes(nil)
	if err != nil {
		t.Fatalf("marshalAttributes: %v", err)
	}
	if got != "{}" {
		t.Fatalf("got %q, want {}", got)
	}
}

func TestMarshalAttributes_RoundTrip(t *testing.T) {
	in := map[string]string{"provider": "anthropic", "model": "claude-3-5-sonnet"}
	got, err := marshalAttributes(in)
	if err != nil {
		t.Fatalf("marshalAttributes: %v", err)
	}

	var out map[string]string
	if err := json.Unmarshal([]byte(got), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["provider"] != "anthropic" || out["model"] != "claude-3-5-sonnet" {
		t.Fatalf("round-trip mismatch: %+v", out)
	}
}

func TestEmitter_DropsWhenQueueSaturated(t *testing.T) {
	e := &Emitter{
		batchSize: 10,
	}
	// Pre-fill the buffer past the saturation threshold (batchSize*4) so
	// Emit drops the incoming span before it ever reaches the append path
	// (which would require a live ClickHouse connection).
	e.buf = make([]canon.Span, e.batchSize*4)

	e.Emit(canon.Span{TraceID: "t1", SpanID: "s1"})

	if got := e.Dropped(); got != 1 {
		t.Fatalf("Dropped() = %d, want 1", got)
	}
	if len(e.buf) != e.batchSize*4 {
		t.Fatalf("buffer length changed on drop: got %d, want %d", len(e.buf), e.batchSize*4)
	}
}
