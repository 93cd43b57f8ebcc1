package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ocrDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gradeflow",
		Subsystem: "ocr",
		Name:      "extraction_duration_seconds",
		Help:      "Duration of OCR extraction requests",
	}, []string{"model"})

	ocrFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gradeflow",
		Subsystem: "ocr",
		Name:      "extraction_failures_total",
		Help:      "Number of OCR extraction failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the vision-based extractor.
type OpenAIConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	Logger    zerolog.Logger
}

// OpenAIExtractor implements Extractor against the OpenAI vision API.
type OpenAIExtractor struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIExtractor builds a new extractor using the provided configuration.
func NewOpenAIExtractor(cfg OpenAIConfig) (*OpenAIExtractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &OpenAIExtractor{
		client: openai.NewClientWithConfig(openai.DefaultConfig(cfg.APIKey)),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gradeflow-api/pkg/ocr/openai"),
		logger: logger,
	}, nil
}

// Extract sends the file to the vision model and returns the transcribed
// text.
func (e *OpenAIExtractor) Extract(parent context.Context, fileURL string) (string, error) {
	ctx, span := e.tracer.Start(parent, "ocr.extract", trace.WithAttributes(
		attribute.String("model", e.cfg.Model),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: extractorSystemPrompt(),
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: "Transcribe every piece of handwritten and printed text on this answer sheet, top to bottom. Keep question numbering.",
					},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: fileURL},
					},
				},
			},
		},
	}

	resp, err := e.client.CreateChatCompletion(ctx, request)
	ocrDuration.WithLabelValues(e.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		ocrFailures.WithLabelValues(e.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("ocr extract: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from ocr provider")
		ocrFailures.WithLabelValues(e.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	e.logger.Debug().Int("chars", len(text)).Msg("answer sheet transcribed")

	return text, nil
}

func extractorSystemPrompt() string {
	return "You are an OCR engine for photographed student answer sheets. Output only the transcribed text. Preserve question " +
		"numbers and line breaks. If a word is illegible, write [illegible]. Do not add commentary."
}
