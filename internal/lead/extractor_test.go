package lead

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/tensai/internal/conversation"
	"github.com/ent0n29/tensai/internal/inference"
)

type stubInferer struct {
	reply string
	err   error
	got   []conversation.Turn
}

func (s *stubInferer) Infer(_ context.Context, turns []conversation.Turn) (string, error) {
	s.got = turns
	return s.reply, s.err
}

func TestExtractorSendsInstructionAndTranscript(t *testing.T) {
	stub := &stubInferer{reply: "```json\n{\"name\":\"Jane\",\"phone\":\"555-1234\",\"email\":\"\",\"pain_points\":\"demo\"}\n```"}
	ex := NewExtractor(stub, nil, nil)
	turns := []conversation.Turn{
		{Role: conversation.RoleUser, Content: "I'm Jane, 555-1234"},
		{Role: conversation.RoleAssistant, Content: "Thanks Jane"},
	}

	rec := ex.Extract(context.Background(), turns)
	assert.Equal(t, Record{Name: "Jane", Phone: "555-1234", PainPoints: "demo"}, rec)

	require.Len(t, stub.got, 2)
	assert.Equal(t, conversation.RoleSystem, stub.got[0].Role)
	assert.Contains(t, stub.got[0].Content, `"pain_points"`)
	assert.Equal(t, conversation.RoleUser, stub.got[1].Role)
	transcript, _ := json.Marshal(turns)
	assert.True(t, strings.HasSuffix(stub.got[1].Content, string(transcript)))
}

func TestExtractorReturnsEmptyOnFailure(t *testing.T) {
	cases := map[string]*stubInferer{
		"exhausted": {
			reply: inference.ExhaustedText,
			err:   &inference.InferenceError{Kind: inference.KindExhausted, Err: errors.New("429")},
		},
		"garbage": {reply: "no json here"},
	}
	for name, stub := range cases {
		t.Run(name, func(t *testing.T) {
			rec := NewExtractor(stub, nil, nil).Extract(context.Background(), nil)
			assert.True(t, rec.IsEmpty())
		})
	}
}
