package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

// LarkConfig holds Lark client configuration
type LarkConfig struct {
	AppID      string
	AppSecret  string
	APITimeout time.Duration
}

// LarkDispatcher delivers triggers as Lark text messages. Directory user IDs
// double as Lark user IDs in deployments using this dispatcher.
type LarkDispatcher struct {
	client *lark.Client
	logger *zap.Logger
}

// NewLarkDispatcher creates a Lark-backed dispatcher
func NewLarkDispatcher(cfg LarkConfig, logger *zap.Logger) *LarkDispatcher {
	timeout := cfg.APITimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	client := lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
		lark.WithReqTimeout(timeout),
	)

	return &LarkDispatcher{
		client: client,
		logger: logger,
	}
}

// Dispatch sends the trigger's message to every recipient. Per-recipient
// failures are collected; a partial delivery still reports the failures.
func (d *LarkDispatcher) Dispatch(ctx context.Context, trigger Trigger) error {
	content, err := textContent(trigger.Message())
	if err != nil {
		return fmt.Errorf("failed to encode message content: %w", err)
	}

	var failed int
	for _, recipient := range trigger.Recipients {
		if err := d.send(ctx, recipient.ID, content); err != nil {
			failed++
			d.logger.Error("Failed to send Lark message",
				zap.String("recipient", recipient.ID),
				zap.String("intent", string(trigger.Intent)),
				zap.Error(err))
		}
	}

	if failed > 0 {
		return fmt.Errorf("failed to deliver to %d of %d recipients", failed, len(trigger.Recipients))
	}
	return nil
}

func (d *LarkDispatcher) send(ctx context.Context, userID, content string) error {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("user_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(userID).
			MsgType("text").
			Content(content).
			Build()).
		Build()

	resp, err := d.client.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}
	return nil
}

// textContent builds the Lark text message payload with proper escaping
func textContent(text string) (string, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}
