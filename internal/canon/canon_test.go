package canon

import (
	"testing"

	"github.com/goccy/go-json"

	"github.com/opengw/llmgateway/pkg/types"
)

func TestMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{name: "valid user", msg: Message{Role: RoleUser, Text: "hi"}},
		{name: "unknown role", msg: Message{Role: "narrator", Text: "hi"}, wantErr: true},
		{
			name:    "tool message missing tool_call_id",
			msg:     Message{Role: RoleTool, Text: "result"},
			wantErr: true,
		},
		{
			name: "image part with neither url nor base64",
			msg: Message{
				Role:  RoleUser,
				Parts: []ContentPart{{Type: "image_url"}},
			},
			wantErr: true,
		},
		{
			name: "image part with url is valid",
			msg: Message{
				Role:  RoleUser,
				Parts: []ContentPart{{Type: "image_url", ImageURL: "https://example.com/a.png"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCanonicalRequest_Validate(t *testing.T) {
	if err := (CanonicalRequest{}).Validate(); err == nil {
		t.Fatal("expected error for missing model")
	}
	if err := (CanonicalRequest{Model: "gpt-4o"}).Validate(); err == nil {
		t.Fatal("expected error for missing messages")
	}
	valid := CanonicalRequest{
		Model:    "gpt-4o",
		Messages: []Message{{Role: RoleUser, Text: "hi"}},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRoundTrip_ChatRequestToCanonicalAndBack(t *testing.T) {
	content, _ := json.Marshal("hello there")
	orig := &types.ChatRequest{
		Model: "gpt-4o",
		Messages: []types.ChatMessage{
			{Role: "system", Content: mustMarshal(t, "be concise")},
			{Role: "user", Content: content},
		},
	}

	cr, err := FromChatRequest(orig)
	if err != nil {
		t.Fatalf("FromChatRequest: %v", err)
	}

	back, err := cr.ToChatRequest()
	if err != nil {
		t.Fatalf("ToChatRequest: %v", err)
	}

	if back.Model != orig.Model {
		t.Fatalf("model mismatch: got %q want %q", back.Model, orig.Model)
	}
	if len(back.Messages) != len(orig.Messages) {
		t.Fatalf("message count mismatch: got %d want %d", len(back.Messages), len(orig.Messages))
	}
	for i := range orig.Messages {
		if back.Messages[i].Role != orig.Messages[i].Role {
			t.Errorf("message %d role mismatch: got %q want %q", i, back.Messages[i].Role, orig.Messages[i].Role)
		}
		var origText, backText string
		_ = json.Unmarshal(orig.Messages[i].Content, &origText)
		_ = json.Unmarshal(back.Messages[i].Content, &backText)
		if origText != backText {
			t.Errorf("message %d text mismatch: got %q want %q", i, backText, origText)
		}
	}
}

func TestHTTPStatusForKind(t *testing.T) {
	tests := map[ErrorKind]int{
		ErrBadRequest:        400,
		ErrAuthFailed:        401,
		ErrModelNotFound:     404,
		ErrRateLimited:       429,
		ErrCostLimitExceeded: 429,
		ErrUpstream:          502,
		ErrToolLoopExhausted: 502,
		ErrInternal:          500,
	}
	for kind, want := range tests {
		if got := HTTPStatusForKind(kind); got != want {
			t.Errorf("HTTPStatusForKind(%s) = %d, want %d", kind, got, want)
		}
	}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
