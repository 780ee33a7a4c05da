package linebot

// events.go LINE Webhook のイベント封筒。
// 必要なフィールドだけをデコードする。

// イベント種別
const (
	EventTypeMessage  = "message"
	EventTypeFollow   = "follow"
	EventTypeUnfollow = "unfollow"
	EventTypeJoin     = "join"
	EventTypeLeave    = "leave"
)

// MessageTypeText テキストメッセージ
const MessageTypeText = "text"

// WebhookRequest Webhook リクエストボディ
type WebhookRequest struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

// Event 1 件の Webhook イベント
type Event struct {
	Type       string       `json:"type"`
	ReplyToken string       `json:"replyToken,omitempty"`
	Timestamp  int64        `json:"timestamp"`
	Source     EventSource  `json:"source"`
	Message    EventMessage `json:"message,omitempty"`
}

// EventSource イベントの送信元
type EventSource struct {
	Type    string `json:"type"` // user / group / room
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

// EventMessage メッセージイベントの中身
type EventMessage struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}
