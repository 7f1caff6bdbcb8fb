// Package llm 封装对大模型的调用：渲染提示词、发起补全请求、
// 返回原始文本。解析与校验交给 decision 包，这里不做任何裁剪。
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"alpha-arena/internal/config"
	"alpha-arena/internal/market"
	"alpha-arena/internal/venue"
)

// Client 封装 OpenAI 调用逻辑。
type Client struct {
	cfg    config.OpenAIConfig
	logger *zap.Logger
	sdk    *openai.Client
}

// NewClient 使用给定配置创建模型客户端。
func NewClient(cfg config.OpenAIConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api_key 不能为空")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai model 不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sdkConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkConfig.BaseURL = cfg.BaseURL
	}
	sdkConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout + 5*time.Second,
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
		sdk:    openai.NewClientWithConfig(sdkConfig),
	}, nil
}

// GenerateDecision 渲染提示词并请求模型，返回未经解析的原始文本。
func (c *Client) GenerateDecision(ctx context.Context, snapshot market.Snapshot, account venue.AccountSnapshot) (string, error) {
	prompt, err := BuildPrompt(snapshot, account)
	if err != nil {
		return "", err
	}

	started := time.Now()
	response, err := c.sdk.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0,
	})
	if err != nil {
		c.logger.Error("调用OpenAI失败", zap.Error(err))
		return "", fmt.Errorf("调用OpenAI失败: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", errors.New("OpenAI 返回结果为空")
	}
	raw := strings.TrimSpace(response.Choices[0].Message.Content)
	if raw == "" {
		return "", errors.New("OpenAI 返回内容为空")
	}

	c.logger.Info("模型响应已返回",
		zap.String("model", c.cfg.Model),
		zap.Int("content_length", len(raw)),
		zap.Duration("elapsed", time.Since(started)),
	)

	return raw, nil
}
