package telegram

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/maptitesalle/mylittlegymcoach/internal/config"
	"github.com/maptitesalle/mylittlegymcoach/internal/content"
	"github.com/maptitesalle/mylittlegymcoach/internal/logger"
	"github.com/maptitesalle/mylittlegymcoach/internal/metrics"
)

const usageDays = 7

// Sender is the part of the Telegram API the bot writes through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// UsageReporter provides the LLM usage history.
type UsageReporter interface {
	GetDailyUsage(ctx context.Context, days int) ([]metrics.DailyUsage, error)
}

// RecordReader gives access to generation records.
type RecordReader interface {
	GetByRequestID(ctx context.Context, requestID string) (*content.Record, error)
	CountByStatus(ctx context.Context) (map[content.Status]int, error)
}

// TaskStats reports the background generation load.
type TaskStats interface {
	Running() int
	Pending() int
}

// Deps groups what the bot reports on.
type Deps struct {
	Usage    UsageReporter
	Records  RecordReader
	Tasks    TaskStats
	DataPath string
	Logger   *logger.Logger
}

// Bot is the operator bot: it answers admin commands and pushes
// generation failure alerts.
type Bot struct {
	api      *tgbotapi.BotAPI
	sender   Sender
	adminID  int64
	usage    UsageReporter
	records  RecordReader
	tasks    TaskStats
	dataPath string
	log      *logger.Logger
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, deps Deps) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}

	b := newBot(api, cfg.TelegramAdminID, deps)
	b.api = api
	b.log.Info("Authorized on account", "username", api.Self.UserName)

	wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url %s: %w", cfg.TelegramWebhookURL, err)
	}
	resp, err := api.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
	}
	b.log.Info("Webhook set", "description", resp.Description)

	return b, nil
}

func newBot(sender Sender, adminID int64, deps Deps) *Bot {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Bot{
		sender:   sender,
		adminID:  adminID,
		usage:    deps.Usage,
		records:  deps.Records,
		tasks:    deps.Tasks,
		dataPath: deps.DataPath,
		log:      log.With("component", "TelegramBot"),
	}
}

// HandleWebhook parses one update pushed by Telegram.
func (b *Bot) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		b.log.Warn("Error parsing update", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	if update.Message == nil {
		return
	}
	go b.processMessage(update.Message)
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.ID != b.adminID {
		from := int64(0)
		if msg.From != nil {
			from = msg.From.ID
		}
		b.log.Warn("Unauthorized access attempt", "telegram_user", from)
		b.reply(msg.Chat.ID, "⛔ *Access Denied*: Admin only.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch msg.Command() {
	case "metrics":
		b.handleMetricsCommand(ctx, msg.Chat.ID)
	case "status":
		b.handleStatusCommand(ctx, msg.Chat.ID, strings.TrimSpace(msg.CommandArguments()))
	default:
		b.reply(msg.Chat.ID, "Commands: /metrics, /status <requestId>")
	}
}

func (b *Bot) handleMetricsCommand(ctx context.Context, chatID int64) {
	usage, err := b.usage.GetDailyUsage(ctx, usageDays)
	if err != nil {
		b.log.Error("Failed to fetch usage", "error", err)
		b.reply(chatID, "❌ Error fetching metrics.")
		return
	}
	counts, err := b.records.CountByStatus(ctx)
	if err != nil {
		b.log.Error("Failed to count generations", "error", err)
		b.reply(chatID, "❌ Error fetching metrics.")
		return
	}

	running, pending := 0, 0
	if b.tasks != nil {
		running, pending = b.tasks.Running(), b.tasks.Pending()
	}
	health := metrics.GetSysHealth(b.dataPath)

	b.reply(chatID, formatMetricsReport(usage, counts, running, pending, health))
}

func (b *Bot) handleStatusCommand(ctx context.Context, chatID int64, requestID string) {
	if requestID == "" {
		b.reply(chatID, "Usage: /status <requestId>")
		return
	}
	rec, err := b.records.GetByRequestID(ctx, requestID)
	if err != nil {
		b.log.Error("Failed to fetch record", "request_id", requestID, "error", err)
		b.reply(chatID, "❌ Error fetching record.")
		return
	}
	b.reply(chatID, formatStatus(requestID, rec))
}

// GenerationFailed alerts the admin about a terminal generation error.
func (b *Bot) GenerationFailed(requestID string, contentType content.Type, reason string) {
	b.sendAdminAlert(formatFailureAlert(requestID, contentType, reason))
}

// StaleSwept alerts the admin about records failed by the sweeper.
func (b *Bot) StaleSwept(requestIDs []string) {
	b.sendAdminAlert(formatStaleAlert(requestIDs))
}

func (b *Bot) sendAdminAlert(text string) {
	if b.adminID == 0 {
		return
	}
	b.reply(b.adminID, text)
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.sender.Send(msg); err != nil {
		b.log.Warn("Failed to send telegram message", "chat_id", chatID, "error", err)
	}
}

func formatMetricsReport(usage []metrics.DailyUsage, counts map[content.Status]int, running, pending int, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent LLM Activity*\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		sb.WriteString(fmt.Sprintf("• *%s*: %d tokens (%d execs, %d failed)\n",
			d.Date, d.TotalPrompt+d.TotalCompletion, d.TotalExecution, d.Failed))
	}

	sb.WriteString("\n⚙️ *Generations*\n")
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		sb.WriteString(fmt.Sprintf("• %s: %d\n", s, counts[content.Status(s)]))
	}
	sb.WriteString(fmt.Sprintf("• Running: %d / Waiting: %d\n", running, pending))

	sb.WriteString("\n🧠 *System Health*\n")
	sb.WriteString(fmt.Sprintf("• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", health.Goroutines))
	sb.WriteString(fmt.Sprintf("• Disk Data: %s\n", health.DataDiskSize))

	return sb.String()
}

func formatStatus(requestID string, rec *content.Record) string {
	if rec == nil {
		return fmt.Sprintf("🔎 `%s`: not found", requestID)
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🔎 `%s`\n", requestID))
	sb.WriteString(fmt.Sprintf("• Type: %s\n", rec.ContentType))
	sb.WriteString(fmt.Sprintf("• Status: *%s*\n", rec.Status))
	sb.WriteString(fmt.Sprintf("• Updated: %s\n", rec.UpdatedAt.Format(time.RFC3339)))
	switch rec.Status {
	case content.StatusCompleted:
		sb.WriteString(fmt.Sprintf("• Length: %d chars\n", len(rec.Content)))
	case content.StatusError:
		sb.WriteString(fmt.Sprintf("• Error:\n```\n%s\n```", safe(rec.Content)))
	}
	return sb.String()
}

func formatFailureAlert(requestID string, contentType content.Type, reason string) string {
	return fmt.Sprintf("❌ *Generation failed*\nRequest: `%s`\nType: %s\n```\n%s\n```", requestID, contentType, safe(reason))
}

func formatStaleAlert(requestIDs []string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("⏱ *%d stale generation(s) marked as failed*\n", len(requestIDs)))
	for _, id := range requestIDs {
		sb.WriteString(fmt.Sprintf("• `%s`\n", id))
	}
	return sb.String()
}

// safe keeps error text from breaking the Markdown code block.
func safe(s string) string {
	return strings.ReplaceAll(s, "`", "'")
}
