// Package gemini implements an inference.Classifier backed by the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"google.golang.org/genai"

	"github.com/inercia/agentchat/internal/inference"
)

var _ inference.Classifier = (*Classifier)(nil)

// DefaultModel is used when no classifier model is configured.
const DefaultModel = "gemini-2.5-flash"

// Classifier classifies with the Gemini API.
// The client is created on first use; a failed creation is retried on the
// next call.
type Classifier struct {
	model     string
	apiKeyEnv string

	mu     sync.Mutex
	client *genai.Client
}

// NewClassifier creates a classifier reading its API key from the
// apiKeyEnv environment variable.
func NewClassifier(model, apiKeyEnv string) *Classifier {
	if model == "" {
		model = DefaultModel
	}
	return &Classifier{model: model, apiKeyEnv: apiKeyEnv}
}

func (g *Classifier) getClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}

	apiKey := os.Getenv(g.apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("environment variable %s is not set", g.apiKeyEnv)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	g.client = client
	return client, nil
}

// Classify implements inference.Classifier.
func (g *Classifier) Classify(ctx context.Context, prompt string) (string, error) {
	client, err := g.getClient(ctx)
	if err != nil {
		return "", err
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"servers": {
					Type:  genai.TypeArray,
					Items: &genai.Schema{Type: genai.TypeString},
				},
			},
			Required: []string{"servers"},
		},
	})
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", errors.New("gemini returned an empty response")
	}
	return text, nil
}
