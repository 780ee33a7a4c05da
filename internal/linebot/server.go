package linebot

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/tomiyasu0428/agri-ai-agent/internal/nlp"
	"github.com/tomiyasu0428/agri-ai-agent/pkg/logging"
)

// eventTimeout 1 イベントの処理時間上限
const eventTimeout = 60 * time.Second

// maxBodyBytes Webhook ボディの読み込み上限
const maxBodyBytes = 1 << 20

// StatsFunc /stats で公開する対話エージェント統計を返す
type StatsFunc func() any

// Server Webhook を受ける HTTP サーバー
type Server struct {
	handler       *Handler
	channelSecret string
	metrics       *Metrics
	contexts      *nlp.ContextManager
	stats         StatsFunc
	logger        *logging.Logger

	httpServer *http.Server
}

// NewServer サーバーを組み立てる
func NewServer(addr string, handler *Handler, channelSecret string, metrics *Metrics, contexts *nlp.ContextManager, stats StatsFunc, logger *logging.Logger) *Server {
	s := &Server{
		handler:       handler,
		channelSecret: channelSecret,
		metrics:       metrics,
		contexts:      contexts,
		stats:         stats,
		logger:        logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/", s.handleRoot)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start サーバーを起動する（ブロックする）
func (s *Server) Start() error {
	s.logger.Info("webhook server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 処理中のリクエストを待ってから止める
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP テストからルーティングを直接叩けるようにする
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body failed", http.StatusBadRequest)
		return
	}

	if !ValidateSignature(s.channelSecret, body, r.Header.Get("X-Line-Signature")) {
		s.logger.Warn("invalid webhook signature")
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var req WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	// 応答はすぐ返し、イベントは裏で処理する。
	// 同一ユーザーの直列化は Handler のロックが受け持つ。
	for _, event := range req.Events {
		go func(event Event) {
			ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
			defer cancel()
			if err := s.handler.HandleEvent(ctx, event); err != nil {
				s.logger.WithError(err).Error("event handling failed", "type", event.Type)
			}
		}(event)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"contexts":  s.contexts.GetStatistics(),
	}
	if s.stats != nil {
		payload["agents"] = s.stats()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Agricultural AI LINE Bot is running!"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
