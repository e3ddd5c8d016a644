package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v3"

	"github.com/NitroDevv/tgbot/internal/conversation"
	"github.com/NitroDevv/tgbot/internal/model"
	"github.com/NitroDevv/tgbot/internal/service"
)

func adminPanelKeyboard() *tele.ReplyMarkup {
	kb := &tele.ReplyMarkup{}
	kb.Inline(
		kb.Row(kb.Data("➕ Majburiy obuna qo'shish", "admin_add_sub")),
		kb.Row(kb.Data("➖ Majburiy obunani olib tashlash", "admin_remove_sub")),
		kb.Row(kb.Data("🤖 Bot qo'shish", "admin_add_bot")),
		kb.Row(kb.Data("🗑 Bot o'chirish", "admin_del_bot")),
		kb.Row(kb.Data("👥 Foydalanuvchilar", "admin_users")),
		kb.Row(kb.Data("📊 Statistika", "admin_stats")),
		kb.Row(kb.Data("💳 Balans to'ldirish", "admin_topup")),
		kb.Row(kb.Data("💰 Referral summani o'zgartirish", "admin_change_referral")),
		kb.Row(kb.Data("📢 Xabar yuborish", "admin_broadcast")),
	)
	return kb
}

func adminBackKeyboard() *tele.ReplyMarkup {
	kb := &tele.ReplyMarkup{}
	kb.Inline(kb.Row(kb.Data("🔙 Orqaga", "admin_panel")))
	return kb
}

func (b *Bot) handleAdminPanel(c tele.Context) error {
	if !b.isAdmin(c.Sender().ID) {
		return nil
	}
	b.conv.Cancel(c.Sender().ID)
	if c.Callback() != nil {
		return c.Edit("🔐 Admin panel", adminPanelKeyboard())
	}
	return c.Send("🔐 Admin panel", adminPanelKeyboard())
}

func (b *Bot) handleAdminCallback(c tele.Context, unique, arg string) error {
	defer c.Respond()
	switch unique {
	case "admin_panel":
		return b.handleAdminPanel(c)
	case "admin_add_sub":
		b.conv.Enter(c.Sender().ID, conversation.StepAdminChannel)
		return c.Edit("Kanal username ni kiriting (masalan: @channel_username):", adminBackKeyboard())
	case "admin_remove_sub":
		return b.adminListChannels(c)
	case "admin_remove_sub_id":
		return b.adminRemoveChannel(c, arg)
	case "admin_add_bot":
		b.conv.Enter(c.Sender().ID, conversation.StepAdminTemplateFile)
		return c.Edit("Bot faylini yuboring (zip, py yoki boshqa fayllar):", adminBackKeyboard())
	case "admin_del_bot":
		return b.adminListTemplates(c)
	case "admin_del_bot_id":
		return b.adminDeleteTemplate(c, arg)
	case "admin_users":
		return b.adminUsersReport(c)
	case "admin_stats":
		return b.adminStats(c)
	case "admin_topup":
		b.conv.Enter(c.Sender().ID, conversation.StepAdminTopUpUser)
		return c.Edit("Foydalanuvchi ID sini kiriting:", adminBackKeyboard())
	case "admin_change_referral":
		b.conv.Enter(c.Sender().ID, conversation.StepAdminReferralAmount)
		current := b.referralSvc.Amount(context.Background())
		return c.Edit(fmt.Sprintf("Hozirgi referral summa: %s\n\nYangi summani kiriting:", formatSum(current)), adminBackKeyboard())
	case "admin_broadcast":
		b.conv.Enter(c.Sender().ID, conversation.StepAdminBroadcast)
		return c.Edit("Barcha foydalanuvchilarga yuboriladigan xabarni kiriting:", adminBackKeyboard())
	case "approve_payment":
		return b.adminApprovePayment(c, arg)
	case "reject_payment":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "Xatolik!", ShowAlert: true})
		}
		st := b.conv.Enter(c.Sender().ID, conversation.StepAdminRejectReason)
		st.SetInt64("payment_id", id)
		return c.Send("Rad etish sababini kiriting:")
	}
	log.Printf("[Bot] unknown admin callback: %q", unique)
	return nil
}

func (b *Bot) handleAdminStep(c tele.Context, st *conversation.State) error {
	ctx := context.Background()
	text := strings.TrimSpace(c.Text())

	switch st.Step {
	case conversation.StepAdminChannel:
		return b.adminAddChannel(c, text)

	case conversation.StepAdminTemplateFile:
		return c.Send("❌ Iltimos, fayl yuboring!")

	case conversation.StepAdminTemplateName:
		st.Set("name", text)
		b.conv.Advance(c.Sender().ID, conversation.StepAdminTemplatePrice)
		return c.Send("✅ Bot nomi qabul qilindi!\n\nBot narxini kiriting (so'm):")

	case conversation.StepAdminTemplatePrice:
		price, err := strconv.ParseFloat(text, 64)
		if err != nil || price < 0 {
			return c.Send("❌ Noto'g'ri narx! Iltimos, raqam kiriting.")
		}
		st.SetFloat("price", price)
		b.conv.Advance(c.Sender().ID, conversation.StepAdminRunCommand)
		return c.Send("✅ Bot narxi qabul qilindi!\n\n" +
			"Botni qanday qilib ishga tushirish kerak?\n" +
			"Masalan:\n" +
			"- python bot.py\n" +
			"- python main.py\n\n" +
			"Run command ni kiriting:")

	case conversation.StepAdminRunCommand:
		return b.adminFinishTemplate(c, st, text)

	case conversation.StepAdminTopUpUser:
		userID, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return c.Send("❌ Noto'g'ri ID! Iltimos, raqam kiriting.")
		}
		st.SetInt64("user_id", userID)
		b.conv.Advance(c.Sender().ID, conversation.StepAdminTopUpAmount)
		return c.Send("Summani kiriting (so'm):")

	case conversation.StepAdminTopUpAmount:
		return b.adminFinishTopUp(c, st, text)

	case conversation.StepAdminReferralAmount:
		amount, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return c.Send("❌ Noto'g'ri summa! Iltimos, raqam kiriting.")
		}
		if err := b.referralSvc.SetAmount(ctx, amount); err != nil {
			if errors.Is(err, service.ErrInvalidAmount) {
				return c.Send("❌ Summa manfiy bo'lishi mumkin emas!")
			}
			return err
		}
		b.conv.Finish(c.Sender().ID)
		return c.Send(fmt.Sprintf("✅ Referral summa o'zgartirildi: %s", formatSum(amount)))

	case conversation.StepAdminRejectReason:
		return b.adminFinishReject(c, st, text)

	case conversation.StepAdminBroadcast:
		b.conv.Finish(c.Sender().ID)
		res, err := b.adminSvc.Broadcast(ctx, text)
		if err != nil {
			return err
		}
		return c.Send(fmt.Sprintf("✅ Xabar yuborildi!\n\n📤 Yuborildi: %d\n❌ Yuborilmadi: %d", res.Sent, res.Failed))
	}
	return nil
}

func (b *Bot) adminAddChannel(c tele.Context, username string) error {
	if !strings.HasPrefix(username, "@") {
		username = "@" + username
	}
	chat, err := b.bot.ChatByUsername(username)
	if err != nil {
		b.conv.Finish(c.Sender().ID)
		return c.Send(fmt.Sprintf("❌ Xatolik: %v", err))
	}

	channelID := strconv.FormatInt(chat.ID, 10)
	err = b.gateSvc.AddChannel(context.Background(), channelID, username)
	b.conv.Finish(c.Sender().ID)
	if err != nil {
		if errors.Is(err, service.ErrIllegalTransition) {
			return c.Send("❌ Kanal allaqachon qo'shilgan!")
		}
		return c.Send(fmt.Sprintf("❌ Xatolik: %v", err))
	}
	return c.Send(fmt.Sprintf("✅ Kanal qo'shildi: %s", username))
}

func (b *Bot) adminListChannels(c tele.Context) error {
	channels, err := b.gateSvc.Channels(context.Background())
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		return c.Edit("Majburiy obunalar mavjud emas.", adminBackKeyboard())
	}

	kb := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, ch := range channels {
		label := ch.Username
		if label == "" {
			label = ch.ChannelID
		}
		rows = append(rows, kb.Row(kb.Data("❌ "+label, "admin_remove_sub_id", ch.ChannelID)))
	}
	rows = append(rows, kb.Row(kb.Data("🔙 Orqaga", "admin_panel")))
	kb.Inline(rows...)

	return c.Edit("Olib tashlash uchun kanalni tanlang:", kb)
}

func (b *Bot) adminRemoveChannel(c tele.Context, channelID string) error {
	if err := b.gateSvc.RemoveChannel(context.Background(), channelID); err != nil {
		return err
	}
	return c.Edit("✅ Kanal muvaffaqiyatli olib tashlandi!", adminBackKeyboard())
}

func (b *Bot) handleDocument(c tele.Context) error {
	sender := c.Sender()
	st := b.conv.Get(sender.ID)
	if st == nil || st.Step != conversation.StepAdminTemplateFile || !b.isAdmin(sender.ID) {
		return nil
	}
	doc := c.Message().Document
	if doc == nil {
		return c.Send("❌ Iltimos, fayl yuboring!")
	}

	dir := b.cfg.Storage.TemplatesDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("%d_%s", time.Now().Unix(), doc.FileName))
	if err := b.bot.Download(&doc.File, path); err != nil {
		return err
	}

	st.Set("file_path", path)
	b.conv.Advance(sender.ID, conversation.StepAdminTemplateName)
	return c.Send("✅ Bot fayli qabul qilindi!\n\nBot nomini kiriting:")
}

func (b *Bot) adminFinishTemplate(c tele.Context, st *conversation.State, runCommand string) error {
	name, _ := st.Get("name")
	filePath, _ := st.Get("file_path")
	price, _ := st.GetFloat("price")

	tpl := &model.Template{
		Name:       name,
		FilePath:   filePath,
		RunCommand: runCommand,
		Price:      price,
	}
	err := b.adminSvc.AddTemplate(context.Background(), tpl)
	b.conv.Finish(c.Sender().ID)
	if err != nil {
		return c.Send(fmt.Sprintf("❌ Xatolik: %v", err))
	}
	return c.Send(fmt.Sprintf("✅ Bot qo'shildi!\n\n🤖 Nomi: %s\n💰 Narxi: %s\n▶️ Run command: %s",
		name, formatSum(price), runCommand))
}

func (b *Bot) adminListTemplates(c tele.Context) error {
	templates, err := b.adminSvc.Templates(context.Background())
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		return c.Edit("Botlar mavjud emas.", adminBackKeyboard())
	}

	kb := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, tpl := range templates {
		rows = append(rows, kb.Row(kb.Data("❌ "+tpl.Name, "admin_del_bot_id", tpl.ID.String())))
	}
	rows = append(rows, kb.Row(kb.Data("🔙 Orqaga", "admin_panel")))
	kb.Inline(rows...)

	return c.Edit("O'chirish uchun botni tanlang:", kb)
}

func (b *Bot) adminDeleteTemplate(c tele.Context, arg string) error {
	id, err := uuid.Parse(arg)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Bot topilmadi!", ShowAlert: true})
	}
	if err := b.adminSvc.DeleteTemplate(context.Background(), id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.Respond(&tele.CallbackResponse{Text: "Bot topilmadi!", ShowAlert: true})
		}
		return err
	}
	return c.Edit("✅ Bot o'chirildi!", adminBackKeyboard())
}

// adminUsersReport sends the full account list to the operator as a text
// file; inline messages are too small for more than a handful of rows.
func (b *Bot) adminUsersReport(c tele.Context) error {
	report, err := b.adminSvc.UsersReport(context.Background())
	if err != nil {
		return err
	}
	f, err := os.CreateTemp("", "users_*.txt")
	if err != nil {
		return err
	}
	path := f.Name()
	defer os.Remove(path)
	if _, err := f.WriteString(report); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	doc := &tele.Document{File: tele.FromDisk(path), FileName: "foydalanuvchilar.txt"}
	return c.Send(doc)
}

func (b *Bot) adminStats(c tele.Context) error {
	stats, err := b.adminSvc.Stats(context.Background())
	if err != nil {
		return err
	}
	text := "📊 Statistika\n\n"
	text += fmt.Sprintf("👤 Umumiy foydalanuvchilar: %d\n", stats.TotalUsers)
	text += fmt.Sprintf("📊 Aktiv foydalanuvchilar (30 kun): %d\n", stats.ActiveUsers)
	text += fmt.Sprintf("🤖 Jami yaratilgan botlar: %d\n", stats.TotalInstances)
	return c.Edit(text, adminBackKeyboard())
}

func (b *Bot) adminFinishTopUp(c tele.Context, st *conversation.State, text string) error {
	amount, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return c.Send("❌ Noto'g'ri summa! Iltimos, raqam kiriting.")
	}
	userID, ok := st.GetInt64("user_id")
	if !ok {
		b.conv.Cancel(c.Sender().ID)
		return c.Send("Xatolik yuz berdi! Qaytadan boshlang.")
	}

	balance, err := b.adminSvc.TopUp(context.Background(), userID, amount)
	b.conv.Finish(c.Sender().ID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAmount) {
			return c.Send("❌ Summa musbat bo'lishi kerak!")
		}
		return c.Send(fmt.Sprintf("❌ Xatolik: %v", err))
	}
	return c.Send(fmt.Sprintf("✅ Balans to'ldirildi!\n\n👤 Foydalanuvchi: %d\n💰 Yangi balans: %s", userID, formatSum(balance)))
}

func (b *Bot) adminApprovePayment(c tele.Context, arg string) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Xatolik!", ShowAlert: true})
	}
	payment, err := b.paymentSvc.Approve(context.Background(), id)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrIllegalTransition):
		return c.Respond(&tele.CallbackResponse{Text: "To'lov allaqachon ko'rib chiqilgan!", ShowAlert: true})
	case errors.Is(err, service.ErrNotFound):
		return c.Respond(&tele.CallbackResponse{Text: "To'lov topilmadi!", ShowAlert: true})
	default:
		log.Printf("[Bot] payment approve failed: payment=%d err=%v", id, err)
		return c.Respond(&tele.CallbackResponse{Text: "Xatolik yuz berdi!", ShowAlert: true})
	}
	if err := c.Respond(&tele.CallbackResponse{Text: "✅ To'lov tasdiqlandi!"}); err != nil {
		return err
	}
	_ = c.Send(fmt.Sprintf("✅ To'lov #%d tasdiqlandi.\n\n👤 Foydalanuvchi: %d\n💰 Summa: %s",
		payment.ID, payment.UserID, formatSum(payment.Amount)))
	return nil
}

func (b *Bot) adminFinishReject(c tele.Context, st *conversation.State, reason string) error {
	id, ok := st.GetInt64("payment_id")
	if !ok {
		b.conv.Cancel(c.Sender().ID)
		return c.Send("Xatolik yuz berdi! Qaytadan boshlang.")
	}
	payment, err := b.paymentSvc.Reject(context.Background(), id, reason)
	b.conv.Finish(c.Sender().ID)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrIllegalTransition):
		return c.Send("To'lov allaqachon ko'rib chiqilgan!")
	case errors.Is(err, service.ErrNotFound):
		return c.Send("To'lov topilmadi!")
	default:
		return err
	}
	return c.Send(fmt.Sprintf("❌ To'lov #%d rad etildi.\n\n👤 Foydalanuvchi: %d\n📝 Sabab: %s",
		payment.ID, payment.UserID, reason))
}

func (b *Bot) handleBan(c tele.Context) error {
	if !b.isAdmin(c.Sender().ID) {
		return nil
	}
	args := strings.Fields(c.Message().Payload)
	if len(args) == 0 {
		return c.Send("Foydalanish: /ban <user_id> [sabab]")
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Send("❌ Noto'g'ri ID!")
	}
	reason := strings.Join(args[1:], " ")
	if err := b.userSvc.Ban(context.Background(), userID, reason); err != nil {
		return err
	}
	return c.Send(fmt.Sprintf("🚫 Foydalanuvchi bloklandi: %d", userID))
}

func (b *Bot) handleUnban(c tele.Context) error {
	if !b.isAdmin(c.Sender().ID) {
		return nil
	}
	args := strings.Fields(c.Message().Payload)
	if len(args) == 0 {
		return c.Send("Foydalanish: /unban <user_id>")
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Send("❌ Noto'g'ri ID!")
	}
	if err := b.userSvc.Unban(context.Background(), userID); err != nil {
		return err
	}
	return c.Send(fmt.Sprintf("✅ Foydalanuvchi blokdan chiqarildi: %d", userID))
}
