//go:generate mockgen -source=llm.go -destination=mocks/mocks.go -package=mocks Generator,Embedder

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type OllamaClientSuite struct {
	suite.Suite
	server  *httptest.Server
	handler http.HandlerFunc
	client  *OllamaClient
}

func TestOllamaClientSuite(t *testing.T) {
	suite.Run(t, new(OllamaClientSuite))
}

func (s *OllamaClientSuite) SetupTest() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.handler(w, r)
	}))
	s.client = NewOllamaClient(s.server.URL+"/", "small-model", time.Second, WithEmbedModel("embed-model"))
}

func (s *OllamaClientSuite) TearDownTest() {
	s.server.Close()
}

// =============================================================================
// Generate
// =============================================================================

func (s *OllamaClientSuite) TestGenerate() {
	s.Run("sends defaults and returns response text", func() {
		var got generatePayload
		s.handler = func(w http.ResponseWriter, r *http.Request) {
			s.Equal("/api/generate", r.URL.Path)
			s.Require().NoError(json.NewDecoder(r.Body).Decode(&got))
			_ = json.NewEncoder(w).Encode(generateResponse{Response: "SAFE"})
		}

		out, err := s.client.Generate(context.Background(), GenerateRequest{Prompt: "hello"})
		s.Require().NoError(err)
		s.Equal("SAFE", out)
		s.Equal("small-model", got.Model)
		s.Equal(DefaultSystemPrompt, got.System)
		s.False(got.Stream)
	})

	s.Run("explicit model and system prompt win", func() {
		var got generatePayload
		s.handler = func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&got)
			_ = json.NewEncoder(w).Encode(generateResponse{Response: "ok"})
		}

		_, err := s.client.Generate(context.Background(), GenerateRequest{Prompt: "p", Model: "large", SystemPrompt: "sys"})
		s.Require().NoError(err)
		s.Equal("large", got.Model)
		s.Equal("sys", got.System)
	})

	s.Run("non-2xx is a transport error", func() {
		s.handler = func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusInternalServerError)
		}

		_, err := s.client.Generate(context.Background(), GenerateRequest{Prompt: "p"})
		s.Require().Error(err)
		s.Equal(ErrorTransport, CategoryOf(err))
		s.Contains(err.Error(), "model not loaded")
	})

	s.Run("garbage body is a bad response", func() {
		s.handler = func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}

		_, err := s.client.Generate(context.Background(), GenerateRequest{Prompt: "p"})
		s.Equal(ErrorBadResponse, CategoryOf(err))
	})

	s.Run("deadline is a timeout", func() {
		s.handler = func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := s.client.Generate(ctx, GenerateRequest{Prompt: "p"})
		s.Equal(ErrorTimeout, CategoryOf(err))
	})
}

// =============================================================================
// Embed and health
// =============================================================================

func (s *OllamaClientSuite) TestEmbed() {
	s.Run("returns vector", func() {
		var got embedPayload
		s.handler = func(w http.ResponseWriter, r *http.Request) {
			s.Equal("/api/embeddings", r.URL.Path)
			_ = json.NewDecoder(r.Body).Decode(&got)
			_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float64{0.1, 0.2}})
		}

		vec, err := s.client.Embed(context.Background(), "text")
		s.Require().NoError(err)
		s.Equal([]float64{0.1, 0.2}, vec)
		s.Equal("embed-model", got.Model)
		s.Equal("text", got.Prompt)
	})

	s.Run("empty vector is a bad response", func() {
		s.handler = func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"embedding":[]}`))
		}

		_, err := s.client.Embed(context.Background(), "text")
		s.Equal(ErrorBadResponse, CategoryOf(err))
	})
}

func (s *OllamaClientSuite) TestHealth() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			_, _ = w.Write([]byte(`{"models":[]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}
	s.NoError(s.client.Health(context.Background()))

	s.server.Close()
	err := s.client.Health(context.Background())
	s.Equal(ErrorTransport, CategoryOf(err))
}

// =============================================================================
// Confidence tag
// =============================================================================

type stubGenerator struct {
	out    string
	prompt string
}

func (g *stubGenerator) Generate(_ context.Context, req GenerateRequest) (string, error) {
	g.prompt = req.Prompt
	return g.out, nil
}

func TestExtractConfidence(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantText string
		wantConf float64
	}{
		{"tag present", "Paris. [CONFIDENCE: 0.92]", "Paris.", 0.92},
		{"tag missing", "Paris.", "Paris.", DefaultConfidence},
		{"clamped above one", "x [CONFIDENCE: 7]", "x", 1},
		{"unparsable value", "x [CONFIDENCE: 0.1.2]", "x", DefaultConfidence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, conf := ExtractConfidence(tt.raw)
			assert.Equal(t, tt.wantText, text)
			assert.InDelta(t, tt.wantConf, conf, 1e-9)
		})
	}
}

func TestGenerateWithConfidence(t *testing.T) {
	g := &stubGenerator{out: "answer [CONFIDENCE: 0.3]"}
	text, conf, err := GenerateWithConfidence(context.Background(), g, "question", "")
	require.NoError(t, err)
	assert.Equal(t, "answer", text)
	assert.InDelta(t, 0.3, conf, 1e-9)
	assert.Contains(t, g.prompt, "[CONFIDENCE: <value>]")
}
