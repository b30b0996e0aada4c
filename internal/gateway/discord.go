package gateway

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/rahul/operator/internal/observability"
)

const (
	NameDiscord = "discord"

	discordMaxMessage = 2000
)

// DiscordGateway answers messages in any channel the bot can read. Chat IDs
// are channel IDs.
type DiscordGateway struct {
	Session    *discordgo.Session
	Dispatcher *Dispatcher

	log *zap.Logger
	wg  sync.WaitGroup
}

func NewDiscordGateway(token string, d *Dispatcher) (*DiscordGateway, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentGuildMessages | discordgo.IntentDirectMessages | discordgo.IntentMessageContent

	return &DiscordGateway{
		Session:    s,
		Dispatcher: d,
		log:        observability.GetLogger().Named(NameDiscord),
	}, nil
}

func (dg *DiscordGateway) Start(ctx context.Context) error {
	remove := dg.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot || m.Content == "" {
			return
		}
		if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
			return
		}
		dg.handle(ctx, m.ChannelID, m.Content)
	})
	defer remove()

	if err := dg.Session.Open(); err != nil {
		return err
	}
	dg.log.Info("Connected to Discord")

	<-ctx.Done()
	dg.wg.Wait()
	return nil
}

func (dg *DiscordGateway) handle(ctx context.Context, channelID, text string) {
	dg.wg.Add(1)
	go func() {
		defer dg.wg.Done()
		reply := dg.Dispatcher.Handle(ctx, NameDiscord, channelID, text)
		if err := dg.Send(channelID, reply); err != nil {
			dg.log.Warn("Error sending reply", zap.String("channel_id", channelID), zap.Error(err))
		}
	}()
}

func (dg *DiscordGateway) Send(chatID string, text string) error {
	for _, part := range chunk(text, discordMaxMessage) {
		if _, err := dg.Session.ChannelMessageSend(chatID, part); err != nil {
			return err
		}
	}
	return nil
}

func (dg *DiscordGateway) Stop() error {
	return dg.Session.Close()
}
