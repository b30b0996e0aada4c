package gateway

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/rahul/operator/internal/observability"
)

const (
	NameTelegram = "telegram"

	telegramMaxMessage = 4096
)

type TelegramGateway struct {
	Bot        *tgbotapi.BotAPI
	Dispatcher *Dispatcher

	log *zap.Logger
	wg  sync.WaitGroup
}

func NewTelegramGateway(token string, d *Dispatcher) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log := observability.GetLogger().Named(NameTelegram)
	log.Info("Authorized on account", zap.String("username", bot.Self.UserName))

	return &TelegramGateway{
		Bot:        bot,
		Dispatcher: d,
		log:        log,
	}, nil
}

func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			tg.wg.Wait()
			return nil
		case update, ok := <-updates:
			if !ok {
				tg.wg.Wait()
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			tg.handle(ctx, update.Message)
		}
	}
}

// handle answers in the background so a long case does not block updates.
func (tg *TelegramGateway) handle(ctx context.Context, msg *tgbotapi.Message) {
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	user := ""
	if msg.From != nil {
		user = msg.From.UserName
	}
	tg.log.Debug("Message received", zap.String("user", user), zap.String("chat_id", chatID))

	tg.wg.Add(1)
	go func() {
		defer tg.wg.Done()
		reply := tg.Dispatcher.Handle(ctx, NameTelegram, chatID, msg.Text)
		if err := tg.Send(chatID, reply); err != nil {
			tg.log.Warn("Error sending reply", zap.String("chat_id", chatID), zap.Error(err))
		}
	}()
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	for _, part := range chunk(text, telegramMaxMessage) {
		if _, err := tg.Bot.Send(tgbotapi.NewMessage(id, part)); err != nil {
			return err
		}
	}
	return nil
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
