package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/NitroDevv/tgbot/internal/config"
	"github.com/NitroDevv/tgbot/internal/conversation"
	"github.com/NitroDevv/tgbot/internal/service"
)

type Bot struct {
	bot  *tele.Bot
	cfg  *config.Config
	conv *conversation.Manager

	userSvc      *service.UserService
	gateSvc      *service.GateService
	ledgerSvc    *service.LedgerService
	paymentSvc   *service.PaymentService
	referralSvc  *service.ReferralService
	provisionSvc *service.ProvisionService
	lifecycleSvc *service.LifecycleService
	adminSvc     *service.AdminService
}

func NewBot(
	cfg *config.Config,
	userSvc *service.UserService,
	gateSvc *service.GateService,
	ledgerSvc *service.LedgerService,
	paymentSvc *service.PaymentService,
	referralSvc *service.ReferralService,
	provisionSvc *service.ProvisionService,
	lifecycleSvc *service.LifecycleService,
	adminSvc *service.AdminService,
) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.Telegram.BotToken,
		Poller: &tele.LongPoller{Timeout: 60 * time.Second},
	}

	bot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:          bot,
		cfg:          cfg,
		conv:         conversation.NewManager(),
		userSvc:      userSvc,
		gateSvc:      gateSvc,
		ledgerSvc:    ledgerSvc,
		paymentSvc:   paymentSvc,
		referralSvc:  referralSvc,
		provisionSvc: provisionSvc,
		lifecycleSvc: lifecycleSvc,
		adminSvc:     adminSvc,
	}

	b.registerHandlers()

	return b, nil
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/admin", b.handleAdminPanel)
	b.bot.Handle("/logs", b.handleLogs)
	b.bot.Handle("/ban", b.handleBan)
	b.bot.Handle("/unban", b.handleUnban)

	b.bot.Handle(tele.OnText, b.handleText)
	b.bot.Handle(tele.OnContact, b.handleContact)
	b.bot.Handle(tele.OnPhoto, b.handlePhoto)
	b.bot.Handle(tele.OnDocument, b.handleDocument)
	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

func (b *Bot) StartPolling(ctx context.Context) {
	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()
	b.bot.Start()
}

func (b *Bot) GetBotUsername() string {
	return b.bot.Me.Username
}

// SendMessage implements service.Notifier.
func (b *Bot) SendMessage(chatID int64, text string) error {
	_, err := b.bot.Send(&tele.User{ID: chatID}, text)
	return err
}

// IsMember implements service.MembershipChecker. Stored channel ids are
// numeric strings resolved when the admin added the channel.
func (b *Bot) IsMember(_ context.Context, channelID string, userID int64) (bool, error) {
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return false, fmt.Errorf("bad channel id %q: %w", channelID, err)
	}
	member, err := b.bot.ChatMemberOf(&tele.Chat{ID: id}, &tele.User{ID: userID})
	if err != nil {
		return false, err
	}
	switch member.Role {
	case tele.Creator, tele.Administrator, tele.Member:
		return true, nil
	}
	return false, nil
}

func (b *Bot) isAdmin(userID int64) bool {
	return b.cfg.Telegram.AdminID != 0 && userID == b.cfg.Telegram.AdminID
}

const (
	btnReferral  = "👥 Referral chaqirish"
	btnCabinet   = "💼 Asosiy kabinet"
	btnCreate    = "🤖 Bot yaratish"
	btnMyBots    = "🤖 Mening botlarim"
	btnTopUp     = "💳 Balans to'ldirish"
	btnMainMenu  = "🔙 Asosiy menu"
	btnCancel    = "🔙 Bekor qilish"
	btnShareText = "📱 Telefon raqamini ulashish"
)

func mainMenuKeyboard() *tele.ReplyMarkup {
	kb := &tele.ReplyMarkup{ResizeKeyboard: true}
	kb.Reply(
		kb.Row(kb.Text(btnReferral)),
		kb.Row(kb.Text(btnCabinet)),
		kb.Row(kb.Text(btnCreate)),
		kb.Row(kb.Text(btnMyBots)),
	)
	return kb
}

func contactKeyboard() *tele.ReplyMarkup {
	kb := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	kb.Reply(kb.Row(kb.Contact(btnShareText)))
	return kb
}

func cancelKeyboard() *tele.ReplyMarkup {
	kb := &tele.ReplyMarkup{ResizeKeyboard: true}
	kb.Reply(kb.Row(kb.Text(btnCancel)))
	return kb
}

func backKeyboard() *tele.ReplyMarkup {
	kb := &tele.ReplyMarkup{ResizeKeyboard: true}
	kb.Reply(kb.Row(kb.Text(btnMainMenu)))
	return kb
}

func formatSum(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64) + " so'm"
}
