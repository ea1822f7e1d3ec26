// Package telegram is the chat front end: it turns bot updates into catalog
// and import operations and replies with the outcome.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"forum-quiz-service/internal/app"
	"forum-quiz-service/internal/batchfile"
	"forum-quiz-service/internal/domain"
)

// Client is the subset of *tgbotapi.BotAPI the bot needs.
type Client interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// DocumentFetcher downloads an uploaded file by id.
type DocumentFetcher interface {
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// Update carries the forum fields that tgbotapi v5 does not decode.
type Update struct {
	UpdateID int      `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

type Message struct {
	tgbotapi.Message
	MessageThreadID   int64       `json:"message_thread_id,omitempty"`
	IsTopicMessage    bool        `json:"is_topic_message,omitempty"`
	ForumTopicCreated *ForumTopic `json:"forum_topic_created,omitempty"`
}

type ForumTopic struct {
	Name string `json:"name"`
}

type Bot struct {
	api        Client
	catalog    *app.CatalogService
	importer   *app.Importer
	downloader DocumentFetcher
	allowed    map[int64]struct{}
	logger     *slog.Logger

	imports     context.Context
	stopImports context.CancelFunc
	wg          sync.WaitGroup
}

// NewBot builds the command router. An empty allowlist lets every user in.
func NewBot(api Client, catalog *app.CatalogService, importer *app.Importer, downloader DocumentFetcher, allowedUsers []int64, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[int64]struct{}, len(allowedUsers))
	for _, id := range allowedUsers {
		allowed[id] = struct{}{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{
		api:         api,
		catalog:     catalog,
		importer:    importer,
		downloader:  downloader,
		allowed:     allowed,
		logger:      logger,
		imports:     ctx,
		stopImports: cancel,
	}
}

// Run long-polls for updates until ctx is done.
func (b *Bot) Run(ctx context.Context, timeout time.Duration) error {
	offset := 0
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		updates, err := b.fetch(offset, timeout)
		if err != nil {
			b.logger.Warn("get updates failed", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			if backoff < time.Minute {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			b.Handle(ctx, upd)
		}
	}
}

func (b *Bot) fetch(offset int, timeout time.Duration) ([]Update, error) {
	params := tgbotapi.Params{}
	params.AddNonZero("offset", offset)
	params.AddNonZero("timeout", int(timeout.Seconds()))
	if err := params.AddInterface("allowed_updates", []string{"message"}); err != nil {
		return nil, err
	}
	resp, err := b.api.MakeRequest("getUpdates", params)
	if err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal(resp.Result, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// Close cancels running imports and waits for them to report.
func (b *Bot) Close() {
	b.stopImports()
	b.wg.Wait()
}

// Handle routes one update.
func (b *Bot) Handle(ctx context.Context, upd Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	if msg.ForumTopicCreated != nil {
		b.registerTopic(ctx, msg)
		return
	}
	if !b.authorized(msg) {
		if msg.IsCommand() || msg.Document != nil {
			b.reply(msg, "You are not authorized to use this bot.")
		}
		return
	}
	if msg.Document != nil {
		b.handleDocument(msg)
		return
	}
	if !msg.IsCommand() {
		return
	}

	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start", "help":
		b.reply(msg, helpText)
	case "setgroup":
		b.setGroup(ctx, msg, args)
	case "addtopic":
		b.addTopic(ctx, msg, args)
	case "removetopic":
		b.removeTopic(ctx, msg, args)
	case "listtopics":
		b.listTopics(msg)
	case "addquiz":
		b.addQuiz(ctx, msg, args)
	case "clearresponses":
		b.clearResponses(msg)
	default:
		b.reply(msg, "Unknown command. Use /start to list commands.")
	}
}

func (b *Bot) authorized(msg *Message) bool {
	if len(b.allowed) == 0 {
		return true
	}
	if msg.From == nil {
		return false
	}
	_, ok := b.allowed[msg.From.ID]
	return ok
}

func (b *Bot) setGroup(ctx context.Context, msg *Message, args string) {
	groupID := args
	if groupID == "" {
		if msg.Chat.IsPrivate() {
			b.reply(msg, usageSetGroup)
			return
		}
		groupID = strconv.FormatInt(msg.Chat.ID, 10)
	}
	if err := b.catalog.SetCurrentGroup(ctx, groupID); err != nil {
		b.fail(msg, "setgroup", err)
		return
	}
	b.reply(msg, "Group set successfully: "+groupID+"!")
}

func (b *Bot) addTopic(ctx context.Context, msg *Message, args string) {
	name, thread, err := parseAddTopic(args)
	if errors.Is(err, errUsage) {
		b.reply(msg, usageAddTopic)
		return
	}
	if err != nil {
		b.fail(msg, "addtopic", err)
		return
	}
	topic, err := b.catalog.AddTopic(ctx, "", name, thread)
	if err != nil {
		b.fail(msg, "addtopic", err)
		return
	}
	b.reply(msg, "Topic '"+topic.Name+"' added successfully!")
}

func (b *Bot) removeTopic(ctx context.Context, msg *Message, args string) {
	if args == "" {
		b.reply(msg, usageRemoveTopic)
		return
	}
	name := domain.NormalizeTopicName(args)
	if err := b.catalog.RemoveTopic(ctx, "", name); err != nil {
		if errors.Is(err, domain.ErrTopicNotFound) {
			b.reply(msg, "Topic '"+name+"' not found.")
			return
		}
		b.fail(msg, "removetopic", err)
		return
	}
	b.reply(msg, "Topic '"+name+"' removed successfully!")
}

func (b *Bot) listTopics(msg *Message) {
	topics, err := b.catalog.ListTopics("")
	if err != nil {
		b.fail(msg, "listtopics", err)
		return
	}
	b.reply(msg, formatTopics(topics))
}

func (b *Bot) addQuiz(ctx context.Context, msg *Message, args string) {
	topic, quiz, err := parseAddQuiz(args)
	if errors.Is(err, errUsage) {
		b.reply(msg, usageAddQuiz)
		return
	}
	if err != nil {
		b.fail(msg, "addquiz", err)
		return
	}
	if _, err := b.importer.AddQuiz(ctx, "", topic, quiz); err != nil {
		if errors.Is(err, domain.ErrTopicNotFound) {
			b.reply(msg, "Topic '"+domain.NormalizeTopicName(topic)+"' not found.")
			return
		}
		b.fail(msg, "addquiz", err)
		return
	}
	b.reply(msg, "Quiz added successfully!")
}

// clearResponses runs in the background; stop calls are paced like sends.
func (b *Bot) clearResponses(msg *Message) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		res, err := b.importer.ClearResponses(b.imports, b.catalog, "")
		if err != nil {
			b.fail(msg, "clearresponses", err)
			return
		}
		b.reply(msg, formatClear(res))
	}()
}

// handleDocument imports an uploaded batch in the background; the import is
// paced and can take minutes.
func (b *Bot) handleDocument(msg *Message) {
	name := msg.Document.FileName
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
	default:
		b.reply(msg, "Please upload a JSON or YAML file.")
		return
	}
	if b.downloader == nil {
		b.reply(msg, "Document uploads are disabled.")
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx := b.imports
		data, err := b.downloader.Download(ctx, msg.Document.FileID)
		if err != nil {
			b.fail(msg, "download", err)
			return
		}
		b.reply(msg, "Import started, quizzes are sent one at a time.")
		summary, err := b.importer.ImportDocument(ctx, "", bytes.NewReader(data), batchfile.FormatOf(name))
		if err != nil && !summary.Canceled {
			b.fail(msg, "import", err)
			return
		}
		b.reply(msg, formatSummary(summary))
	}()
}

// registerTopic records forum topics created in the managed group.
func (b *Bot) registerTopic(ctx context.Context, msg *Message) {
	groupID := strconv.FormatInt(msg.Chat.ID, 10)
	if _, err := b.catalog.ResolveGroup(groupID); err != nil {
		return
	}
	topic, err := b.catalog.AddTopic(ctx, groupID, msg.ForumTopicCreated.Name, msg.MessageThreadID)
	if err != nil {
		b.logger.Warn("topic discovery failed", "group", groupID, "name", msg.ForumTopicCreated.Name, "error", err)
		return
	}
	b.logger.Info("topic discovered", "group", groupID, "topic", topic.Name, "thread", topic.ThreadID)
}

func (b *Bot) fail(msg *Message, op string, err error) {
	b.logger.Warn("command failed", "op", op, "chat", msg.Chat.ID, "kind", domain.KindOf(err), "error", err)
	b.reply(msg, reason(err))
}

func (b *Bot) reply(msg *Message, text string) {
	params := tgbotapi.Params{
		"chat_id": strconv.FormatInt(msg.Chat.ID, 10),
		"text":    text,
	}
	if msg.IsTopicMessage {
		params.AddNonZero64("message_thread_id", msg.MessageThreadID)
	}
	if _, err := b.api.MakeRequest("sendMessage", params); err != nil {
		b.logger.Error("reply failed", "chat", msg.Chat.ID, "error", err)
	}
}
