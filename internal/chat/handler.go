// internal/chat/handler.go
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/luyichou/webtech-autopost/internal/llm"
	"github.com/luyichou/webtech-autopost/internal/portal"
)

// Messenger is the outgoing side of the chat platform.
type Messenger interface {
	Reply(ctx context.Context, replyToken, text string) error
	Push(ctx context.Context, userID, text string) error
	MessageContent(ctx context.Context, messageID string) ([]byte, error)
}

// Publisher runs the login-then-publish workflow.
type Publisher interface {
	Publish(ctx context.Context, draft portal.ArticleDraft) (bool, error)
}

// Assistant advances a drafting conversation by one exchange.
type Assistant interface {
	Propose(ctx context.Context, history []llm.Turn, text string) (llm.Draft, error)
}

// ImageHost uploads an image and returns its public URL.
type ImageHost interface {
	Upload(ctx context.Context, data []byte, name string) (string, error)
}

// Event is one webhook event after decoding.
type Event struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken"`
	Source     struct {
		Type   string `json:"type"`
		UserID string `json:"userId"`
	} `json:"source"`
	Message struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"message"`
}

const (
	msgPublishStarted = "收到！文章發佈作業已開始，完成後會通知您。"
	msgPublishBusy    = "上一個發文作業仍在進行中，請稍候再試。"
	msgPublishOK      = "文章發佈成功！"
	msgPublishFail    = "文章發佈失敗，請檢查後台或稍後再試。"
	msgCommandUsage   = "發文指令格式：\n發文\n標題：您的標題\n內容：您的內容"
	msgHistoryCleared = "好的，我們重新開始。想發佈什麼文章呢？"
	msgResetCommand   = "重新開始"
)

// publishJobTimeout bounds a background login+publish run.
const publishJobTimeout = 20 * time.Minute

// Handler routes webhook events: direct publish commands go straight to
// the runner, everything else flows through the drafting assistant.
// Publish runs execute on a background worker gated to one at a time,
// since each run owns a full browser.
type Handler struct {
	messenger Messenger
	publisher Publisher
	assistant Assistant
	images    ImageHost // nil disables image handling
	store     *HistoryStore
	prefix    string
	logger    *zap.Logger

	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewHandler wires the webhook handler.
func NewHandler(messenger Messenger, publisher Publisher, assistant Assistant, images ImageHost, store *HistoryStore, commandPrefix string, logger *zap.Logger) *Handler {
	return &Handler{
		messenger: messenger,
		publisher: publisher,
		assistant: assistant,
		images:    images,
		store:     store,
		prefix:    commandPrefix,
		logger:    logger.Named("chat"),
		sem:       semaphore.NewWeighted(1),
	}
}

// Wait blocks until all background publish jobs are done. Called on
// server shutdown.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// HandleEvent processes a single webhook event. Errors are logged, not
// returned: the platform retries deliveries on non-200, and a retry
// would replay the whole conversation step.
func (h *Handler) HandleEvent(ctx context.Context, ev Event) {
	if ev.Type != "message" || ev.Source.UserID == "" {
		return
	}

	switch ev.Message.Type {
	case "text":
		h.handleText(ctx, ev)
	case "image":
		h.handleImage(ctx, ev)
	default:
		h.reply(ctx, ev.ReplyToken, "目前只支援文字與圖片訊息。")
	}
}

func (h *Handler) handleText(ctx context.Context, ev Event) {
	text := strings.TrimSpace(ev.Message.Text)
	userID := ev.Source.UserID

	if text == msgResetCommand {
		if err := h.store.Clear(userID); err != nil {
			h.logger.Warn("History clear failed.", zap.String("user", userID), zap.Error(err))
		}
		h.reply(ctx, ev.ReplyToken, msgHistoryCleared)
		return
	}

	if strings.HasPrefix(text, h.prefix) {
		title, content, ok := ParseDirectCommand(h.prefix, text)
		if !ok {
			h.reply(ctx, ev.ReplyToken, msgCommandUsage)
			return
		}
		h.startPublish(ctx, ev.ReplyToken, userID, portal.ArticleDraft{Title: title, Content: content}, false)
		return
	}

	h.converse(ctx, ev, text)
}

// converse runs one drafting exchange and either keeps chatting or
// kicks off the publish run the assistant signalled.
func (h *Handler) converse(ctx context.Context, ev Event, text string) {
	userID := ev.Source.UserID

	history, err := h.store.History(userID)
	if err != nil {
		h.logger.Warn("History load failed; starting fresh.", zap.String("user", userID), zap.Error(err))
	}

	draft, err := h.assistant.Propose(ctx, history, text)
	if err != nil {
		h.logger.Error("Drafting exchange failed.", zap.String("user", userID), zap.Error(err))
		h.reply(ctx, ev.ReplyToken, "抱歉，我這邊出了點問題，請再說一次。")
		return
	}

	if err := h.store.Append(userID,
		llm.Turn{Role: "user", Text: text},
		llm.Turn{Role: "model", Text: draft.Reply},
	); err != nil {
		h.logger.Warn("History save failed.", zap.String("user", userID), zap.Error(err))
	}

	if draft.ReadyToPublish() {
		h.startPublish(ctx, ev.ReplyToken, userID, portal.ArticleDraft{Title: draft.Title, Content: draft.Content}, true)
		return
	}

	h.reply(ctx, ev.ReplyToken, draft.Reply)
}

// handleImage uploads the image to the configured host and folds its
// URL into the drafting conversation so the assistant can embed it.
func (h *Handler) handleImage(ctx context.Context, ev Event) {
	if h.images == nil {
		h.reply(ctx, ev.ReplyToken, "這個機器人目前沒有開啟圖片上傳功能。")
		return
	}

	data, err := h.messenger.MessageContent(ctx, ev.Message.ID)
	if err != nil {
		h.logger.Warn("Image download failed.", zap.String("message_id", ev.Message.ID), zap.Error(err))
		h.reply(ctx, ev.ReplyToken, "圖片下載失敗，請再傳一次。")
		return
	}

	url, err := h.images.Upload(ctx, data, "chat_"+uuid.New().String())
	if err != nil {
		h.logger.Warn("Image upload failed.", zap.Error(err))
		h.reply(ctx, ev.ReplyToken, "圖片上傳失敗，請再試一次。")
		return
	}

	embed := fmt.Sprintf(`<img src="%s" />`, url)
	if err := h.store.Append(ev.Source.UserID,
		llm.Turn{Role: "user", Text: "（使用者上傳了一張圖片，文章中請使用：" + embed + "）"},
	); err != nil {
		h.logger.Warn("History save failed.", zap.Error(err))
	}
	h.reply(ctx, ev.ReplyToken, "圖片收到了！已準備好放進文章：\n"+url)
}

// startPublish launches the login+publish run in the background. The
// reply token answers immediately; the final outcome arrives as a push
// because the token is single-use and the run outlives it.
// clearHistory marks conversation-drafted runs: their history is
// dropped once the run succeeds, and kept on failure so the user can
// retry from the same draft.
func (h *Handler) startPublish(ctx context.Context, replyToken, userID string, draft portal.ArticleDraft, clearHistory bool) {
	if !h.sem.TryAcquire(1) {
		h.reply(ctx, replyToken, msgPublishBusy)
		return
	}

	h.reply(ctx, replyToken, msgPublishStarted)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.sem.Release(1)

		jobCtx, cancel := context.WithTimeout(context.Background(), publishJobTimeout)
		defer cancel()

		ok, err := h.publisher.Publish(jobCtx, draft)
		if err != nil {
			h.logger.Error("Publish run errored.", zap.String("user", userID), zap.Error(err))
			ok = false
		}

		if ok && clearHistory {
			if err := h.store.Clear(userID); err != nil {
				h.logger.Warn("History clear failed.", zap.String("user", userID), zap.Error(err))
			}
		}

		result := msgPublishOK
		if !ok {
			result = msgPublishFail
		}
		if err := h.messenger.Push(jobCtx, userID, result); err != nil {
			h.logger.Error("Result push failed.", zap.String("user", userID), zap.Error(err))
		}
	}()
}

func (h *Handler) reply(ctx context.Context, replyToken, text string) {
	if replyToken == "" {
		return
	}
	if err := h.messenger.Reply(ctx, replyToken, text); err != nil {
		h.logger.Warn("Reply failed.", zap.Error(err))
	}
}

// ParseDirectCommand extracts {title, content} from a direct publish
// command of the form:
//
//	發文
//	標題：...
//	內容：...
//
// Half-width colons are accepted too. Content runs to the end of the
// message.
func ParseDirectCommand(prefix, text string) (title, content string, ok bool) {
	rest := strings.TrimSpace(strings.TrimPrefix(text, prefix))
	if rest == "" {
		return "", "", false
	}

	titleIdx := indexOfLabel(rest, "標題")
	contentIdx := indexOfLabel(rest, "內容")
	if titleIdx < 0 || contentIdx < 0 || contentIdx <= titleIdx {
		return "", "", false
	}

	titlePart := rest[titleIdx:contentIdx]
	contentPart := rest[contentIdx:]

	title = strings.TrimSpace(stripLabel(titlePart, "標題"))
	content = strings.TrimSpace(stripLabel(contentPart, "內容"))
	if title == "" || content == "" {
		return "", "", false
	}
	return title, content, true
}

func indexOfLabel(s, label string) int {
	for _, sep := range []string{"：", ":"} {
		if idx := strings.Index(s, label+sep); idx >= 0 {
			return idx
		}
	}
	return -1
}

func stripLabel(s, label string) string {
	s = strings.TrimPrefix(s, label)
	s = strings.TrimPrefix(s, "：")
	s = strings.TrimPrefix(s, ":")
	return s
}
