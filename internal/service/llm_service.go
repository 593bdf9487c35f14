package service

import (
	"context"
	"fmt"
	"strings"

	"ikap-analysis/internal/classifier"
	"ikap-analysis/pkg/config"

	"github.com/Role1776/gigago"
	"go.uber.org/zap"
)

// LLMService reviews ambiguous statement rows with GigaChat.
type LLMService struct {
	client    *gigago.Client
	model     *gigago.GenerativeModel
	modelName string
	logger    *zap.Logger
}

var _ classifier.SecondaryClassifier = (*LLMService)(nil)

func NewLLMService(ctx context.Context, cfg *config.GigaChatConfig, logger *zap.Logger) (*LLMService, error) {
	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}

	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "GigaChat"
	}
	model := client.GenerativeModel(modelName)
	model.SystemInstruction = classifier.Instructions
	model.Temperature = 0.1

	logger.Info("Using GigaChat model for transaction review", zap.String("model", modelName))

	return &LLMService{
		client:    client,
		model:     model,
		modelName: modelName,
		logger:    logger,
	}, nil
}

// ClassifyBatch asks the model whether each row is revenue.
func (s *LLMService) ClassifyBatch(ctx context.Context, batch []classifier.Descriptor) ([]classifier.Decision, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	prompt, err := classifier.BuildPrompt(batch)
	if err != nil {
		return nil, err
	}

	messages := []gigago.Message{
		{Role: gigago.RoleUser, Content: sanitizeUTF8(prompt)},
	}

	resp, err := s.model.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to generate response: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from LLM")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	decisions, err := classifier.ParseDecisions(content)
	if err != nil {
		s.logger.Warn("Failed to parse classification answer",
			zap.Int("batch_size", len(batch)),
			zap.Int("content_length", len(content)),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("Transaction review completed",
		zap.String("model", s.modelName),
		zap.Int("batch_size", len(batch)),
		zap.Int("decisions", len(decisions)),
	)
	return decisions, nil
}

func (s *LLMService) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}
