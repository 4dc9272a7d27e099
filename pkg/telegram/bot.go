package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const apiURL = "https://api.telegram.org"

type Bot struct {
	baseURL string
	client  *http.Client
}

func NewBot(token string) *Bot {
	return NewBotWithURL(apiURL, token, nil)
}

// NewBotWithURL points the bot at another Bot API server. A nil client gets
// a default one with a 10s timeout.
func NewBotWithURL(serverURL, token string, client *http.Client) *Bot {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Bot{
		baseURL: strings.TrimRight(serverURL, "/") + "/bot" + token,
		client:  client,
	}
}

func (b *Bot) SendMessage(ctx context.Context, chatID, text string) error {
	params := url.Values{}
	params.Add("chat_id", chatID)
	params.Add("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/sendMessage", strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram API error: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	return nil
}
