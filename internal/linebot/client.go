package linebot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultAPIEndpoint LINE Messaging API のベース URL
const DefaultAPIEndpoint = "https://api.line.me"

// maxMessagesPerReply 1 リプライで送れるメッセージ数の上限
const maxMessagesPerReply = 5

// Client LINE Messaging API クライアント
type Client struct {
	endpoint    string
	accessToken string
	httpClient  *http.Client
}

// NewClient クライアントを作る。endpoint が空なら既定を使う
func NewClient(accessToken, endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultAPIEndpoint
	}
	return &Client{
		endpoint:    endpoint,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []textMessage `json:"messages"`
}

// ReplyMessage リプライトークンに対してテキストを返信する。
// 上限を超える分は切り捨てる（リプライは 1 トークン 1 回のみ）。
func (c *Client) ReplyMessage(ctx context.Context, replyToken string, texts []string) error {
	if len(texts) == 0 {
		return nil
	}
	if len(texts) > maxMessagesPerReply {
		texts = texts[:maxMessagesPerReply]
	}

	messages := make([]textMessage, len(texts))
	for i, text := range texts {
		messages[i] = textMessage{Type: "text", Text: text}
	}

	body, err := json.Marshal(replyRequest{ReplyToken: replyToken, Messages: messages})
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}

	return c.post(ctx, "/v2/bot/message/reply", body)
}

// PushMessage ユーザーに直接テキストを送る
func (c *Client) PushMessage(ctx context.Context, userID string, texts []string) error {
	if len(texts) == 0 {
		return nil
	}
	if len(texts) > maxMessagesPerReply {
		texts = texts[:maxMessagesPerReply]
	}

	messages := make([]textMessage, len(texts))
	for i, text := range texts {
		messages[i] = textMessage{Type: "text", Text: text}
	}

	payload := struct {
		To       string        `json:"to"`
		Messages []textMessage `json:"messages"`
	}{To: userID, Messages: messages}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal push: %w", err)
	}

	return c.post(ctx, "/v2/bot/message/push", body)
}

// Profile ユーザープロフィール
type Profile struct {
	DisplayName string `json:"displayName"`
	UserID      string `json:"userId"`
}

// GetProfile ユーザーの表示名などを取得する
func (c *Client) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint+"/v2/bot/profile/"+userID, nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &profile, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// apiError LINE API のエラーレスポンスをエラー値にする
func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return fmt.Errorf("LINE API %d: %s", resp.StatusCode, body.Message)
	}
	return fmt.Errorf("LINE API %d: %s", resp.StatusCode, string(data))
}
