package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"vivarium/config"
	"vivarium/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// TelegramService pushes dashboard events to a Telegram chat: appliance
// offline/recovery transitions and door activity. Entirely optional; the
// dashboard works without it.
type TelegramService struct {
	bot                *tgbotapi.BotAPI
	chatID             int64
	config             *config.Config
	logger             *zap.Logger
	lastDoorAlertTimes map[string]time.Time // Track last alert time per door
}

func NewTelegramService(cfg *config.Config, logger *zap.Logger) (*TelegramService, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %w", err)
	}

	chatID, err := strconv.ParseInt(cfg.TelegramChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing chat ID: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))

	ts := &TelegramService{
		bot:                bot,
		chatID:             chatID,
		config:             cfg,
		logger:             logger,
		lastDoorAlertTimes: make(map[string]time.Time),
	}

	// Test Telegram connection with retry
	if err := ts.testConnection(); err != nil {
		logger.Error("Telegram connection test failed", zap.Error(err))
		return nil, fmt.Errorf("telegram connection test failed: %w", err)
	}

	return ts, nil
}

// testConnection tests Telegram connection with retry logic
func (ts *TelegramService) testConnection() error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		ts.logger.Info("Testing Telegram connection", zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries))

		_, err := ts.bot.GetMe()
		if err == nil {
			ts.logger.Info("Telegram connection successful")
			return nil
		}

		ts.logger.Warn("Telegram connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	return fmt.Errorf("failed to connect to Telegram after %d attempts", maxRetries)
}

// SendStatusMessage sends a general status message
func (ts *TelegramService) SendStatusMessage(message string) error {
	msg := tgbotapi.NewMessage(ts.chatID, message)
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true

	_, err := ts.bot.Send(msg)
	return err
}

// SendStartupMessage sends a message when the dashboard client starts
func (ts *TelegramService) SendStartupMessage() error {
	message := "🟢 <b>Vivarium Dashboard Started</b>\n\n" +
		"📡 Watching live telemetry from the appliance\n" +
		"🤖 Telegram notifications active"

	return ts.SendStatusMessage(message)
}

// SendOfflineAlert reports that the appliance stopped responding.
func (ts *TelegramService) SendOfflineAlert(since time.Time) error {
	var sb strings.Builder

	sb.WriteString("⚠️ <b>APPLIANCE OFFLINE</b> ⚠️\n\n")
	sb.WriteString(fmt.Sprintf("🕐 <b>Last Seen:</b> %s\n\n", since.Format("2006-01-02 15:04:05")))
	sb.WriteString("💡 <b>Action Required:</b>\n")
	sb.WriteString("The appliance stopped emitting telemetry. Check power and network.\n\n")
	sb.WriteString("🔴 <b>Status:</b> OFFLINE")

	if err := ts.SendStatusMessage(sb.String()); err != nil {
		return fmt.Errorf("error sending offline alert: %w", err)
	}

	ts.logger.Info("Sent offline alert", zap.Time("since", since))
	return nil
}

// SendRecoveryAlert reports that the appliance came back after a silence.
func (ts *TelegramService) SendRecoveryAlert(downDuration time.Duration) error {
	var sb strings.Builder

	sb.WriteString("✅ <b>APPLIANCE RECOVERED</b> ✅\n\n")
	sb.WriteString(fmt.Sprintf("🕐 <b>Recovery Time:</b> %s\n", time.Now().Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("⏱️ <b>Downtime:</b> %s\n\n", formatDuration(downDuration)))
	sb.WriteString("🟢 <b>Status:</b> ONLINE")

	if err := ts.SendStatusMessage(sb.String()); err != nil {
		return fmt.Errorf("error sending recovery alert: %w", err)
	}

	ts.logger.Info("Sent recovery alert", zap.Duration("down_duration", downDuration))
	return nil
}

// SendDoorAlert reports a door state change, throttled per door so a flapping
// contact does not flood the chat.
func (ts *TelegramService) SendDoorAlert(door string, state models.DoorState, at time.Time) error {
	if ts.shouldThrottleDoorAlert(door) {
		ts.logger.Debug("Throttling door alert", zap.String("door", door))
		return nil
	}

	icon := "🚪"
	status := "CLOSED"
	if state == models.DoorOpen {
		status = "OPEN"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s <b>DOOR %s</b>\n\n", icon, status))
	sb.WriteString(fmt.Sprintf("🏷️ <b>Door:</b> %s\n", door))
	sb.WriteString(fmt.Sprintf("🕐 <b>Time:</b> %s", at.Format("2006-01-02 15:04:05")))

	if err := ts.SendStatusMessage(sb.String()); err != nil {
		return fmt.Errorf("error sending door alert: %w", err)
	}

	ts.lastDoorAlertTimes[door] = time.Now()

	ts.logger.Info("Sent door alert",
		zap.String("door", door),
		zap.String("state", string(state)))
	return nil
}

// shouldThrottleDoorAlert checks if we should throttle alerts for a door (within 15 seconds)
func (ts *TelegramService) shouldThrottleDoorAlert(door string) bool {
	lastAlertTime, exists := ts.lastDoorAlertTimes[door]
	if !exists {
		return false // No previous alert, don't throttle
	}

	return time.Since(lastAlertTime) < 15*time.Second
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0f seconds", d.Seconds())
	} else if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%d min %d sec", minutes, seconds)
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%d hr %d min", hours, minutes)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%d days %d hr", days, hours)
}
