package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"market-advisor-bot/internal/advisor"
	"market-advisor-bot/internal/logging"
	"market-advisor-bot/internal/monitor"
)

// Config holds bot configuration
type Config struct {
	BotToken     string
	SubscriberID int64
	PollTimeout  int
}

// Bot runs the interactive chat surface for the single subscriber. Commands
// control the monitor; anything else is treated as a question.
type Bot struct {
	client      *Client
	subscriber  int64
	pollTimeout int
	monitor     *monitor.Monitor
	interactive *monitor.Interactive
	state       *advisor.State
	logger      *logging.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewBot creates the Telegram bot
func NewBot(config Config, mon *monitor.Monitor, interactive *monitor.Interactive, state *advisor.State) *Bot {
	pollTimeout := config.PollTimeout
	if pollTimeout == 0 {
		pollTimeout = 30
	}
	return &Bot{
		client:      NewClient(config.BotToken, pollTimeout),
		subscriber:  config.SubscriberID,
		pollTimeout: pollTimeout,
		monitor:     mon,
		interactive: interactive,
		state:       state,
		logger:      logging.WithComponent("telegram"),
		stopChan:    make(chan struct{}),
	}
}

// Start greets the subscriber and begins the update poll loop
func (b *Bot) Start() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := b.client.SendMessage(ctx, b.subscriber, greeting()); err != nil {
		b.logger.Warn("startup greeting failed", "error", err.Error())
	}
	cancel()

	b.wg.Add(1)
	go b.pollLoop()
	b.logger.Info("telegram bot started")
}

// Stop shuts down the poll loop
func (b *Bot) Stop() {
	close(b.stopChan)
	b.wg.Wait()
	b.logger.Info("telegram bot stopped")
}

func (b *Bot) pollLoop() {
	defer b.wg.Done()

	var offset int64
	for {
		select {
		case <-b.stopChan:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(b.pollTimeout+15)*time.Second)
		updates, err := b.client.GetUpdates(ctx, offset, b.pollTimeout)
		cancel()
		if err != nil {
			b.logger.Warn("getUpdates failed, backing off", "error", err.Error())
			select {
			case <-time.After(5 * time.Second):
			case <-b.stopChan:
				return
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			b.handleUpdate(update)
		}
	}
}

func (b *Bot) handleUpdate(update Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	msg := update.Message

	// Single-subscriber service: anyone else is ignored
	if msg.Chat.ID != b.subscriber {
		b.logger.Warn("message from unauthorized chat ignored", "chat_id", msg.Chat.ID)
		return
	}

	text := strings.TrimSpace(msg.Text)
	logger := logging.TelegramContext(msg.Chat.ID)
	logger.Info("message received", "text", truncateText(text, 80))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	var reply string
	switch command(text) {
	case "/start":
		reply = greeting()
	case "/analyze":
		rec, message := b.interactive.Analyze(ctx)
		reply = fmt.Sprintf("*%s* (confidence %d/10)\n\n%s", rec.Signal, rec.Confidence, message)
	case "/monitor":
		if b.monitor.IsRunning() {
			reply = "Monitoring is already running."
		} else {
			b.monitor.Start()
			reply = "Monitoring started. I'll message you when the picture changes."
		}
	case "/stop":
		if !b.monitor.IsRunning() {
			reply = "Monitoring is not running."
		} else {
			b.monitor.Stop()
			reply = "Monitoring stopped. Use /monitor to resume."
		}
	case "/status":
		reply = b.statusText()
	case "/help":
		reply = helpText()
	default:
		reply = b.interactive.Ask(ctx, text)
	}

	if err := b.client.SendMessage(ctx, b.subscriber, reply); err != nil {
		logger.Error("reply failed", "error", err.Error())
	}
}

// command extracts the leading command, stripping any @botname suffix
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.Fields(text)[0]
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}

func (b *Bot) statusText() string {
	st := b.monitor.Status()

	var sb strings.Builder
	if st.Running {
		fmt.Fprintf(&sb, "*Monitoring active* (checking every %s)\n", st.CheckInterval)
	} else {
		sb.WriteString("*Monitoring inactive*\n")
	}
	fmt.Fprintf(&sb, "Phase: %s\n", st.Phase)
	fmt.Fprintf(&sb, "Cycles run: %d (skipped: %d)\n", st.CyclesRun, st.CyclesSkipped)
	if st.LastCycleAt != nil {
		fmt.Fprintf(&sb, "Last cycle: %s\n", st.LastCycleAt.Format("2006-01-02 15:04:05 MST"))
	}

	if rec := b.state.Latest(); rec != nil {
		fmt.Fprintf(&sb, "\nLatest read: *%s* (confidence %d/10)\n", rec.Signal, rec.Confidence)
		fmt.Fprintf(&sb, "Factors: %d bullish vs %d bearish, %d populated",
			rec.BullishCount, rec.BearishCount, rec.PopulatedCount)
	} else {
		sb.WriteString("\nNo analysis has run yet.")
	}

	return sb.String()
}

func greeting() string {
	return "👋 *Market Advisor online*\n\n" + helpText()
}

func helpText() string {
	return `Commands:
/analyze - run a fresh market read right now
/monitor - start periodic monitoring
/stop - stop periodic monitoring
/status - monitoring state and latest read
/help - this message

Anything else you type is treated as a question about the current market picture.`
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
