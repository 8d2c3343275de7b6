package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	logx "tubefarm/pkg/logx"
)

// Config configures the OpenAI-backed generator.
type Config struct {
	APIKey     string
	Model      string // script model (default gpt-4o)
	TopicModel string // cheap model for topic selection (default gpt-4o-mini)
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "gpt-4o"
	}
	if c.TopicModel == "" {
		c.TopicModel = "gpt-4o-mini"
	}
	return c
}

var ErrNoAPIKey = errors.New("generate: OPENAI_API_KEY not configured")

// OpenAI generates video content through the chat completions API.
//
// It makes two calls per video: a cheap topic pick, then a structured-output
// call that returns the script, title candidates, description and hashtags in
// one JSON object.
type OpenAI struct {
	cfg    Config
	client openai.Client
	log    logx.Logger
}

func NewOpenAI(cfg Config, log logx.Logger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &OpenAI{
		cfg:    cfg.withDefaults(),
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		log:    log,
	}, nil
}

func (g *OpenAI) Generate(ctx context.Context, niche, videoType string) (Content, error) {
	if videoType == "" {
		videoType = "short"
	}
	g.log.Info("generating content", logx.String("niche", niche), logx.String("type", videoType))

	topic, err := g.pickTopic(ctx, niche, videoType)
	if err != nil {
		return Content{}, fmt.Errorf("pick topic: %w", err)
	}

	c, err := g.generateBody(ctx, niche, videoType, topic)
	if err != nil {
		return Content{}, fmt.Errorf("generate body: %w", err)
	}
	if err := validate(&c); err != nil {
		return Content{}, err
	}

	c.Topic = topic
	c.Niche = niche
	c.Type = videoType
	c.GeneratedBy = g.cfg.Model
	return c, nil
}

func (g *OpenAI) pickTopic(ctx context.Context, niche, videoType string) (string, error) {
	form := "short-form"
	if videoType != "short" {
		form = "long-form"
	}
	prompt := fmt.Sprintf(`Generate a single, specific, engaging topic for a %s video in the %q niche.

Requirements:
- Trending and high-interest
- Specific (not too broad)
- One sentence or phrase
- No explanation, just the topic

Topic:`, form, niche)

	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.cfg.TopicModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.9),
		MaxTokens:   openai.Int(50),
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("no response from openai")
	}
	topic := strings.Trim(strings.TrimSpace(completion.Choices[0].Message.Content), `"'`)
	if topic == "" {
		return "", errors.New("empty topic")
	}
	return topic, nil
}

func (g *OpenAI) generateBody(ctx context.Context, niche, videoType, topic string) (Content, error) {
	maxTokens := int64(2000)
	lengthHint := "a 30 to 60 second spoken script (roughly 80-150 words)"
	if videoType != "short" {
		maxTokens = 4000
		lengthHint = "a 5 to 8 minute spoken script"
	}

	prompt := fmt.Sprintf(`Write YouTube video content about %q for the %q niche.

Produce:
- script: %s, hook in the first sentence, no stage directions
- titles: 10 clickable titles, each 40-80 characters, varied styles
- description: 3-5 SEO-optimized paragraphs ending with a call to action
- hashtags: 10-15 relevant hashtags, each starting with #`, topic, niche, lengthHint)

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"script":      map[string]any{"type": "string"},
			"titles":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"description": map[string]any{"type": "string"},
			"hashtags":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required":             []string{"script", "titles", "description", "hashtags"},
		"additionalProperties": false,
	}

	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are a viral YouTube content writer."),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.8),
		MaxTokens:   openai.Int(maxTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "video_content",
					Schema: any(schema),
					Strict: openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return Content{}, err
	}
	if len(completion.Choices) == 0 {
		return Content{}, errors.New("no response from openai")
	}

	var c Content
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &c); err != nil {
		return Content{}, fmt.Errorf("decode response: %w", err)
	}
	return c, nil
}

func validate(c *Content) error {
	if strings.TrimSpace(c.Script) == "" {
		return errors.New("generated script is empty")
	}
	var titles []string
	for _, t := range c.Titles {
		t = strings.TrimSpace(t)
		if t != "" && len(t) <= 100 {
			titles = append(titles, t)
		}
	}
	if len(titles) == 0 {
		return errors.New("no usable titles generated")
	}
	c.Titles = titles
	return nil
}
