package llmservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"copbot/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	reply    string
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, o := range options {
		o(&f.opts)
	}
	if f.reply == "" {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestGenerate_BuildsSystemAndHumanMessages(t *testing.T) {
	m := &fakeModel{reply: "An FIR is the first information report."}
	c := NewWithModel(m, "test", 0)

	got, err := c.Generate(context.Background(), "system prompt", "Question: What is an FIR?")
	require.NoError(t, err)
	assert.Equal(t, "An FIR is the first information report.", got)

	require.Len(t, m.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, m.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, m.messages[1].Role)
	assert.Equal(t, llms.TextContent{Text: "Question: What is an FIR?"}, m.messages[1].Parts[0])
	assert.Zero(t, m.opts.Temperature)
}

func TestGenerate_NoSystemMessage(t *testing.T) {
	m := &fakeModel{reply: "ok"}
	_, err := NewWithModel(m, "test", 0.2).Generate(context.Background(), "", "hello")
	require.NoError(t, err)
	require.Len(t, m.messages, 1)
	assert.InDelta(t, 0.2, m.opts.Temperature, 1e-9)
}

func TestGenerate_EmptyResponse(t *testing.T) {
	_, err := NewWithModel(&fakeModel{}, "test", 0).Generate(context.Background(), "", "hello")
	assert.Error(t, err)
}

func TestCleanAnswer(t *testing.T) {
	assert.Equal(t, "Dial 100.", CleanAnswer("<think>\nthe user wants\n</think>\n Dial 100. "))
	assert.Equal(t, "plain", CleanAnswer("plain"))
}

func TestNew_AgainstOpenAICompatibleServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama3-70b-8192", body.Model)
		assert.Len(t, body.Messages, 2)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","created":1,"model":"llama3-70b-8192",` +
			`"choices":[{"index":0,"message":{"role":"assistant","content":"Dial 100."},"finish_reason":"stop"}],` +
			`"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer srv.Close()

	c, err := New(&config.LLMConfig{BaseURL: srv.URL, Model: "llama3-70b-8192", Key: "Bearer test-key", Timeout: 5 * time.Second})
	require.NoError(t, err)

	got, err := c.Generate(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "Dial 100.", got)
}
