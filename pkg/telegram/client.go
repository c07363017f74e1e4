// Package telegram is a minimal Bot API client: long polling in, sends and
// in-place edits out. Only the surface the bot needs is wrapped.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"
)

// Client talks to the Telegram Bot API.
type Client struct {
	token      string
	baseURL    string
	HTTPClient *http.Client
}

// NewClient builds a bot client for the given token.
func NewClient(token string) *Client {
	return &Client{
		token:   token,
		baseURL: "https://api.telegram.org",
		// Long poll timeout is 30s; leave headroom.
		HTTPClient: &http.Client{Timeout: 40 * time.Second},
	}
}

// SetBaseURL points the client at a different API host (tests).
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

func (c *Client) method(name string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, name)
}

func (c *Client) call(ctx context.Context, name string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.method(name), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	var envelope struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("telegram %s: decode: %w", name, err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram %s: %s", name, envelope.Description)
	}
	if out != nil {
		return json.Unmarshal(envelope.Result, out)
	}
	return nil
}

// GetMe returns the bot's own account.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, "getMe", struct{}{}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SendMessage sends markdown text, optionally with an inline keyboard, and
// returns the new message id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, kb *InlineKeyboardMarkup) (int64, error) {
	payload := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "Markdown",
		"disable_web_page_preview": true,
	}
	if kb != nil {
		payload["reply_markup"] = kb
	}
	var msg Message
	if err := c.call(ctx, "sendMessage", payload, &msg); err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// EditMessage replaces a sent message's text and keyboard in place.
func (c *Client) EditMessage(ctx context.Context, chatID, messageID int64, text string, kb *InlineKeyboardMarkup) error {
	payload := map[string]any{
		"chat_id":                  chatID,
		"message_id":               messageID,
		"text":                     text,
		"parse_mode":               "Markdown",
		"disable_web_page_preview": true,
	}
	if kb != nil {
		payload["reply_markup"] = kb
	}
	return c.call(ctx, "editMessageText", payload, nil)
}

// DeleteMessage removes a message. Used best-effort to scrub key input.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}, nil)
}

// AnswerCallback acknowledges a button press so the client stops spinning.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	return c.call(ctx, "answerCallbackQuery", map[string]any{
		"callback_query_id": callbackID,
	}, nil)
}

// SendPhoto uploads a PNG with a markdown caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, png []byte, caption string, kb *InlineKeyboardMarkup) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("chat_id", fmt.Sprintf("%d", chatID))
	_ = w.WriteField("caption", caption)
	_ = w.WriteField("parse_mode", "Markdown")
	if kb != nil {
		kbJSON, _ := json.Marshal(kb)
		_ = w.WriteField("reply_markup", string(kbJSON))
	}
	fw, err := w.CreateFormFile("photo", "qr.png")
	if err != nil {
		return err
	}
	if _, err := fw.Write(png); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.method("sendPhoto"), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("telegram sendPhoto status %d: %s", res.StatusCode, body)
	}
	return nil
}

// Poll long-polls getUpdates and hands each update to the handler until the
// context is canceled. Handler panics are contained so one bad update cannot
// kill the loop.
func (c *Client) Poll(ctx context.Context, handler func(Update)) {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var updates []Update
		err := c.call(ctx, "getUpdates", map[string]any{
			"offset":  offset,
			"timeout": 30,
		}, &updates)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("telegram poll error: %v", err)
			time.Sleep(3 * time.Second)
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("update handler panic: %v", r)
					}
				}()
				handler(u)
			}()
		}
	}
}
