package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BotClient шлёт сообщения через Telegram Bot API (sendMessage). Для ядра
// это единственный сток уведомлений: персональные напоминания водителям и
// эскалации в группу диспетчеров.
type BotClient struct {
	baseURL          string
	token            string
	dispatcherChatID int64
	http             *http.Client
}

func NewBotClient(baseURL, token string, dispatcherChatID int64) *BotClient {
	return &BotClient{
		baseURL:          baseURL,
		token:            token,
		dispatcherChatID: dispatcherChatID,
		http: &http.Client{
			Timeout: 8 * time.Second,
		},
	}
}

type sendMessageReq struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResp struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NotifyUser отправляет личное сообщение водителю (chat_id = user_id).
func (c *BotClient) NotifyUser(ctx context.Context, userID int64, text string) error {
	return c.sendMessage(ctx, userID, text)
}

// NotifyDispatchers отправляет сообщение в группу диспетчеров.
func (c *BotClient) NotifyDispatchers(ctx context.Context, text string) error {
	if c.dispatcherChatID == 0 {
		return fmt.Errorf("dispatcher chat id is not configured")
	}
	return c.sendMessage(ctx, c.dispatcherChatID, text)
}

func (c *BotClient) sendMessage(ctx context.Context, chatID int64, text string) error {
	if c.token == "" {
		return fmt.Errorf("telegram bot token is not configured")
	}

	b, _ := json.Marshal(sendMessageReq{ChatID: chatID, Text: text})
	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram http %d: %s", resp.StatusCode, string(raw))
	}

	var r sendMessageResp
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("telegram decode error: %w", err)
	}
	if !r.OK {
		return fmt.Errorf("telegram error: %s", r.Description)
	}
	return nil
}
