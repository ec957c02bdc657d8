package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ent0n29/tensai/internal/conversation"
	"github.com/ent0n29/tensai/internal/reliability"
)

func TestConsumeStreamSSE(t *testing.T) {
	stream := strings.NewReader(strings.Join([]string{
		": keepalive",
		"",
		"data: {\"delta\":\"Hel\"}",
		"",
		"data: {\"delta\":\"lo\"}",
		"",
		"data: [DONE]",
		"",
	}, "\n"))
	text, err := consumeStream(stream)
	if err != nil {
		t.Fatalf("consumeStream() error = %v", err)
	}
	if text != "Hello" {
		t.Fatalf("text = %q, want %q", text, "Hello")
	}
}

func TestConsumeStreamNDJSON(t *testing.T) {
	stream := strings.NewReader("{\"delta\":\"Hi\"}\n{\"delta\":\" there\"}\n")
	text, err := consumeStream(stream)
	if err != nil {
		t.Fatalf("consumeStream() error = %v", err)
	}
	if text != "Hi there" {
		t.Fatalf("text = %q, want %q", text, "Hi there")
	}
}

func TestHTTPProviderRoundTrip(t *testing.T) {
	var got httpPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"reply":"hey"}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, 0)
	text, err := p.Complete(context.Background(), Request{
		System: "sys",
		Turns:  []conversation.Turn{{Role: conversation.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "hey" {
		t.Fatalf("text = %q", text)
	}
	if got.System != "sys" || len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestHTTPProviderThrottleStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewHTTPProvider(srv.URL, 0).Complete(context.Background(), Request{})
	if !reliability.IsThrottled(err) {
		t.Fatalf("err = %v, want throttle", err)
	}
}

func TestAnthropicProviderClassifiesStatus(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusTooManyRequests)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if code := int(status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"test","content":[{"type":"text","text":"hi there"}],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":2}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", "test", option.WithBaseURL(srv.URL))
	req := Request{System: "sys", Turns: []conversation.Turn{{Role: conversation.RoleUser, Content: "hello"}}}

	_, err := p.Complete(context.Background(), req)
	var te *reliability.ThrottleError
	if !errors.As(err, &te) || te.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("err = %v, want 429 throttle", err)
	}

	status.Store(reliability.StatusOverloaded)
	if _, err := p.Complete(context.Background(), req); !reliability.IsThrottled(err) {
		t.Fatalf("err = %v, want 529 throttle", err)
	}

	status.Store(http.StatusBadRequest)
	if _, err := p.Complete(context.Background(), req); err == nil || reliability.IsThrottled(err) {
		t.Fatalf("err = %v, want non-throttle failure", err)
	}

	status.Store(http.StatusOK)
	text, err := p.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "hi there" {
		t.Fatalf("text = %q", text)
	}
}

func TestOpenAIProviderClassifiesStatus(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusTooManyRequests)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if code := int(status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"test","choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", "test", srv.URL)
	req := Request{Turns: []conversation.Turn{{Role: conversation.RoleUser, Content: "hi"}}}

	if _, err := p.Complete(context.Background(), req); !reliability.IsThrottled(err) {
		t.Fatalf("err = %v, want throttle", err)
	}
	status.Store(http.StatusOK)
	text, err := p.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "hello" {
		t.Fatalf("text = %q", text)
	}
}

func TestAnthropicMessagesMergeAndLeadWithUser(t *testing.T) {
	msgs := anthropicMessages([]conversation.Turn{
		{Role: conversation.RoleAssistant, Content: "welcome"},
		{Role: conversation.RoleUser, Content: "a"},
		{Role: conversation.RoleUser, Content: "b"},
	})
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" || msgs[2].Role != "user" {
		t.Fatalf("roles = %s %s %s", msgs[0].Role, msgs[1].Role, msgs[2].Role)
	}
}

func TestNewProviderModes(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		cfg     Config
		want    string
		wantErr bool
	}{
		{Config{}, "mock", false},
		{Config{Mode: "auto", AnthropicAPIKey: "k", OpenAIAPIKey: "o"}, "anthropic", false},
		{Config{Mode: "auto", OpenAIAPIKey: "o", HTTPURL: "http://x"}, "openai", false},
		{Config{Mode: "auto", HTTPURL: "http://x"}, "http", false},
		{Config{Mode: "anthropic"}, "", true},
		{Config{Mode: "bedrock"}, "", true},
		{Config{Mode: "openai"}, "", true},
		{Config{Mode: "http"}, "", true},
		{Config{Mode: "MOCK"}, "mock", false},
		{Config{Mode: "carrier-pigeon"}, "", true},
	}
	for _, tc := range cases {
		p, err := NewProvider(ctx, tc.cfg)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("NewProvider(%+v) expected error", tc.cfg)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NewProvider(%+v) error = %v", tc.cfg, err)
		}
		if p.Name() != tc.want {
			t.Fatalf("NewProvider(%+v).Name() = %q, want %q", tc.cfg, p.Name(), tc.want)
		}
	}
}

func TestMockProviderEchoesLastUserTurn(t *testing.T) {
	text, err := NewMockProvider().Complete(context.Background(), Request{Turns: []conversation.Turn{
		{Role: conversation.RoleUser, Content: "first"},
		{Role: conversation.RoleAssistant, Content: "ok"},
		{Role: conversation.RoleUser, Content: " second "},
	}})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "I heard you: second" {
		t.Fatalf("text = %q", text)
	}
}
