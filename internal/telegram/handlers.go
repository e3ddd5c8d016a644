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

func (b *Bot) handleStart(c tele.Context) error {
	sender := c.Sender()
	ctx := context.Background()

	banned, err := b.userSvc.IsBanned(ctx, sender.ID)
	if err != nil {
		return err
	}
	if banned {
		return c.Send("🚫 Siz botdan foydalanishdan cheklangansiz.")
	}

	in := service.IncomingUser{ID: sender.ID, Username: sender.Username}
	user, _, err := b.userSvc.GetOrCreate(ctx, in, strings.TrimSpace(c.Message().Payload))
	if err != nil {
		return err
	}
	fullName := strings.TrimSpace(sender.FirstName + " " + sender.LastName)
	if fullName != "" {
		_ = b.userSvc.SetName(ctx, sender.ID, fullName)
	}

	if !user.Registered() {
		b.conv.Enter(sender.ID, conversation.StepRegistrationPhone)
		return c.Send("👋 Salom! Botdan foydalanish uchun telefon raqamingizni ulashing:", contactKeyboard())
	}

	return b.afterGate(c, func(tc tele.Context) error {
		return b.showMainMenu(tc)
	})
}

// afterGate runs next only when the mandatory-subscription gate passes,
// otherwise it shows the gate prompt. The referral bonus is settled on the
// first successful pass.
func (b *Bot) afterGate(c tele.Context, next func(tele.Context) error) error {
	ctx := context.Background()
	passed, err := b.gateSvc.Passed(ctx, c.Sender().ID)
	if err != nil {
		return err
	}
	if !passed {
		return b.sendGatePrompt(c)
	}
	if err := b.referralSvc.CreditOnboardingBonus(ctx, c.Sender().ID); err != nil {
		log.Printf("[Bot] referral settle failed: user=%d err=%v", c.Sender().ID, err)
	}
	return next(c)
}

func (b *Bot) sendGatePrompt(c tele.Context) error {
	channels, err := b.gateSvc.Channels(context.Background())
	if err != nil {
		return err
	}

	kb := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, ch := range channels {
		label := "📢 " + ch.Username
		rows = append(rows, kb.Row(kb.URL(label, "https://t.me/"+strings.TrimPrefix(ch.Username, "@"))))
	}
	rows = append(rows, kb.Row(kb.Data("✅ Obuna bo'ldim", "check_subscription")))
	kb.Inline(rows...)

	return c.Send("❗️ Botdan foydalanish uchun quyidagi kanallarga obuna bo'ling:", kb)
}

func (b *Bot) showMainMenu(c tele.Context) error {
	b.conv.Cancel(c.Sender().ID)
	return c.Send("Asosiy menu:", mainMenuKeyboard())
}

func (b *Bot) handleContact(c tele.Context) error {
	contact := c.Message().Contact
	if contact == nil {
		return nil
	}
	sender := c.Sender()
	if contact.UserID != sender.ID {
		return c.Send("❌ Iltimos, o'z telefon raqamingizni ulashing:", contactKeyboard())
	}

	ctx := context.Background()
	if err := b.userSvc.SetPhone(ctx, sender.ID, contact.PhoneNumber); err != nil {
		return err
	}
	b.conv.Finish(sender.ID)

	if err := c.Send("✅ Telefon raqamingiz qabul qilindi!", &tele.ReplyMarkup{RemoveKeyboard: true}); err != nil {
		return err
	}
	return b.afterGate(c, func(tc tele.Context) error {
		return b.showMainMenu(tc)
	})
}

func (b *Bot) handleText(c tele.Context) error {
	sender := c.Sender()
	text := strings.TrimSpace(c.Text())

	banned, err := b.userSvc.IsBanned(context.Background(), sender.ID)
	if err != nil {
		return err
	}
	if banned {
		return nil
	}

	if text == btnCancel || text == btnMainMenu {
		b.conv.Cancel(sender.ID)
		return c.Send("Bekor qilindi✅", mainMenuKeyboard())
	}

	if st := b.conv.Get(sender.ID); st != nil {
		if strings.HasPrefix(string(st.Step), "admin/") {
			if !b.isAdmin(sender.ID) {
				b.conv.Cancel(sender.ID)
				return nil
			}
			return b.handleAdminStep(c, st)
		}
		switch st.Step {
		case conversation.StepRegistrationPhone:
			return c.Send("❌ Iltimos, telefon raqamingizni ulashing:", contactKeyboard())
		case conversation.StepDepositAmount:
			return b.stepDepositAmount(c, st)
		case conversation.StepDepositScreenshot:
			return c.Send("Endi to'lov skrinshotini yuboring:")
		case conversation.StepProvisionToken:
			return b.stepProvisionToken(c, st)
		}
	}

	switch text {
	case btnReferral:
		return b.requireAccess(c, b.showReferral)
	case btnCabinet:
		return b.requireAccess(c, b.showCabinet)
	case btnCreate:
		return b.requireAccess(c, b.showCatalog)
	case btnMyBots:
		return b.requireAccess(c, b.showMyInstances)
	case btnTopUp:
		return b.requireAccess(c, b.startDeposit)
	}
	return nil
}

// requireAccess wraps user-facing actions behind registration and the
// subscription gate.
func (b *Bot) requireAccess(c tele.Context, next func(tele.Context) error) error {
	user, err := b.userSvc.Get(context.Background(), c.Sender().ID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return b.handleStart(c)
		}
		return err
	}
	if !user.Registered() {
		b.conv.Enter(c.Sender().ID, conversation.StepRegistrationPhone)
		return c.Send("👋 Botdan foydalanish uchun telefon raqamingizni ulashing:", contactKeyboard())
	}
	return b.afterGate(c, next)
}

func (b *Bot) showCabinet(c tele.Context) error {
	ctx := context.Background()
	userID := c.Sender().ID

	balance, err := b.ledgerSvc.GetBalance(ctx, userID)
	if err != nil {
		return err
	}
	referrals, err := b.referralSvc.Stats(ctx, userID)
	if err != nil {
		return err
	}

	text := "💼 Asosiy kabinet\n\n"
	text += fmt.Sprintf("💰 Balans: %s\n", formatSum(balance))
	text += fmt.Sprintf("👥 Referrallar: %d\n", referrals)

	kb := &tele.ReplyMarkup{ResizeKeyboard: true}
	kb.Reply(
		kb.Row(kb.Text(btnTopUp)),
		kb.Row(kb.Text(btnMainMenu)),
	)
	return c.Send(text, kb)
}

func (b *Bot) showReferral(c tele.Context) error {
	ctx := context.Background()
	userID := c.Sender().ID

	link, err := b.referralSvc.Link(ctx, userID, b.GetBotUsername())
	if err != nil {
		return err
	}
	count, err := b.referralSvc.Stats(ctx, userID)
	if err != nil {
		return err
	}
	amount := b.referralSvc.Amount(ctx)

	text := "👥 Referral dasturi\n\n"
	text += fmt.Sprintf("💰 Har bir do'stingiz uchun: %s\n", formatSum(amount))
	text += fmt.Sprintf("👥 Siz chaqirganlar: %d\n\n", count)
	text += "🔗 Sizning havolangiz:\n"
	text += link + "\n\n"
	text += "Do'stlaringizni taklif qiling va har bir chaqirgan do'stingiz uchun pul oling!"

	return c.Send(text, backKeyboard())
}

func (b *Bot) startDeposit(c tele.Context) error {
	b.conv.Enter(c.Sender().ID, conversation.StepDepositAmount)

	text := "💳 Balans to'ldirish\n\n"
	text += fmt.Sprintf("Karta raqami: %s\n", b.cfg.Telegram.PaymentCard)
	text += "To'lov summasini kiriting (so'm):\n\n"
	text += "To'lov qilganingizdan keyin skrinshot yuboring."

	return c.Send(text, cancelKeyboard())
}

func (b *Bot) stepDepositAmount(c tele.Context, st *conversation.State) error {
	amount, err := strconv.ParseFloat(strings.TrimSpace(c.Text()), 64)
	if err != nil || amount <= 0 {
		return c.Send("❌ Noto'g'ri summa! Iltimos, raqam kiriting.")
	}
	st.SetFloat("amount", amount)
	b.conv.Advance(c.Sender().ID, conversation.StepDepositScreenshot)
	return c.Send(fmt.Sprintf("✅ Summa qabul qilindi: %s\n\nEndi to'lov skrinshotini yuboring:", formatSum(amount)))
}

func (b *Bot) handlePhoto(c tele.Context) error {
	sender := c.Sender()
	st := b.conv.Get(sender.ID)
	if st == nil || st.Step != conversation.StepDepositScreenshot {
		return nil
	}
	photo := c.Message().Photo
	if photo == nil {
		return nil
	}
	amount, ok := st.GetFloat("amount")
	if !ok {
		b.conv.Cancel(sender.ID)
		return c.Send("Xatolik yuz berdi! Qaytadan boshlang.", mainMenuKeyboard())
	}

	ctx := context.Background()
	path := service.EvidencePath(b.cfg.Storage.PaymentsDir(), sender.ID, time.Now())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := b.bot.Download(&photo.File, path); err != nil {
		return err
	}

	paymentID, err := b.paymentSvc.Submit(ctx, sender.ID, amount, path)
	if err != nil {
		return err
	}
	b.conv.Finish(sender.ID)

	b.notifyAdminOfPayment(sender, paymentID, amount, photo)

	return c.Send("✅ To'lov so'rovi adminga yuborildi. Tez orada balansingiz to'ldiriladi.", mainMenuKeyboard())
}

func (b *Bot) notifyAdminOfPayment(from *tele.User, paymentID int64, amount float64, photo *tele.Photo) {
	if b.cfg.Telegram.AdminID == 0 {
		return
	}
	username := from.Username
	if username == "" {
		username = "N/A"
	}
	caption := "💳 Yangi to'lov so'rovi\n\n"
	caption += fmt.Sprintf("👤 Foydalanuvchi ID: %d\n", from.ID)
	caption += fmt.Sprintf("👤 Username: @%s\n", username)
	caption += fmt.Sprintf("💰 Summa: %s", formatSum(amount))

	kb := &tele.ReplyMarkup{}
	id := strconv.FormatInt(paymentID, 10)
	kb.Inline(
		kb.Row(kb.Data("✅ Tasdiqlash", "approve_payment", id)),
		kb.Row(kb.Data("❌ Rad etish", "reject_payment", id)),
	)

	admin := &tele.User{ID: b.cfg.Telegram.AdminID}
	evidence := &tele.Photo{File: photo.File, Caption: caption}
	if _, err := b.bot.Send(admin, evidence, kb); err != nil {
		log.Printf("[Bot] payment notice photo failed: %v", err)
		if _, err := b.bot.Send(admin, caption, kb); err != nil {
			log.Printf("[Bot] payment notice failed: %v", err)
		}
	}
}

func (b *Bot) showCatalog(c tele.Context) error {
	ctx := context.Background()
	templates, err := b.adminSvc.Templates(ctx)
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		return c.Send("❌ Hozircha mavjud botlar yo'q.", backKeyboard())
	}

	balance, err := b.ledgerSvc.GetBalance(ctx, c.Sender().ID)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("🤖 Bot yaratish\n\n💰 Sizning balansingiz: %s\n\nQuyidagi botlardan birini tanlang:\n\n", formatSum(balance))
	kb := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, tpl := range templates {
		line := fmt.Sprintf("🤖 %s — %s", tpl.Name, formatSum(tpl.Price))
		text += fmt.Sprintf("• %s — %s\n", tpl.Name, formatSum(tpl.Price))
		rows = append(rows, kb.Row(kb.Data(line, "select_tpl", tpl.ID.String())))
	}
	rows = append(rows, kb.Row(kb.Data(btnMainMenu, "main_menu")))
	kb.Inline(rows...)

	return c.Send(text, kb)
}

func (b *Bot) selectTemplate(c tele.Context, arg string) error {
	ctx := context.Background()
	sender := c.Sender()

	tplID, err := uuid.Parse(arg)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Bot topilmadi!", ShowAlert: true})
	}
	tpl, err := b.adminSvc.GetTemplate(ctx, tplID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.Respond(&tele.CallbackResponse{Text: "Bot topilmadi!", ShowAlert: true})
		}
		return err
	}

	balance, err := b.ledgerSvc.GetBalance(ctx, sender.ID)
	if err != nil {
		return err
	}
	if balance < tpl.Price {
		alert := fmt.Sprintf("❌ Balansingiz yetmadi!\n\nBot narxi: %s\nSizning balansingiz: %s", formatSum(tpl.Price), formatSum(balance))
		return c.Respond(&tele.CallbackResponse{Text: alert, ShowAlert: true})
	}

	st := b.conv.Enter(sender.ID, conversation.StepProvisionToken)
	st.Set("template_id", tpl.ID.String())

	text := fmt.Sprintf("🤖 %s\n\n", tpl.Name)
	text += fmt.Sprintf("💰 Narx: %s\n", formatSum(tpl.Price))
	text += fmt.Sprintf("💵 Sizning balansingiz: %s\n\n", formatSum(balance))
	text += "Bot tokenini yuboring:"

	return c.Edit(text)
}

func (b *Bot) stepProvisionToken(c tele.Context, st *conversation.State) error {
	ctx := context.Background()
	sender := c.Sender()

	raw, ok := st.Get("template_id")
	if !ok {
		b.conv.Cancel(sender.ID)
		return c.Send("Xatolik yuz berdi! Qaytadan boshlang.", mainMenuKeyboard())
	}
	tplID, err := uuid.Parse(raw)
	if err != nil {
		b.conv.Cancel(sender.ID)
		return c.Send("Xatolik yuz berdi! Qaytadan boshlang.", mainMenuKeyboard())
	}

	inst, err := b.provisionSvc.Provision(ctx, sender.ID, tplID, c.Text())
	if err != nil {
		b.conv.Finish(sender.ID)
		switch {
		case errors.Is(err, service.ErrInvalidToken):
			b.conv.Enter(sender.ID, conversation.StepProvisionToken).Set("template_id", raw)
			return c.Send("❌ Token bo'sh bo'lishi mumkin emas. Bot tokenini yuboring:")
		case errors.Is(err, service.ErrInsufficientFunds):
			return c.Send("Balansingiz yetarli emas!", mainMenuKeyboard())
		case errors.Is(err, service.ErrNotFound):
			return c.Send("Bot topilmadi!", mainMenuKeyboard())
		}
		var perr *service.ProvisioningError
		if errors.As(err, &perr) {
			log.Printf("[Bot] provisioning failed: user=%d err=%v", sender.ID, err)
			return c.Send(fmt.Sprintf("Xatolik:\n%s", perr.Error()), mainMenuKeyboard())
		}
		return err
	}
	b.conv.Finish(sender.ID)

	text := "✅ Bot muvaffaqiyatli yaratildi va ishga tushirildi!\n\n"
	text += fmt.Sprintf("⏳ Amal qilish muddati: %d kun\n", inst.DaysLeft)
	text += "📋 Loglarni ko'rish uchun: /logs"
	return c.Send(text, mainMenuKeyboard())
}

func (b *Bot) showMyInstances(c tele.Context) error {
	ctx := context.Background()
	instances, err := b.lifecycleSvc.ListForUser(ctx, c.Sender().ID)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		return c.Send("🤖 Siz hali hech qanday bot yaratmadingiz.\n\nBot yaratish uchun '🤖 Bot yaratish' tugmasini bosing.", backKeyboard())
	}

	text := "🤖 Mening botlarim\n\n"
	kb := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, inst := range instances {
		name := instanceName(&inst)
		emoji, status := instanceStatus(inst.Status)
		text += fmt.Sprintf("%s %s - %s\n", emoji, name, status)
		rows = append(rows, kb.Row(kb.Data(emoji+" "+name, "my_inst", inst.ID.String())))
	}
	rows = append(rows, kb.Row(kb.Data(btnMainMenu, "main_menu")))
	kb.Inline(rows...)

	if c.Callback() != nil {
		return c.Edit(text, kb)
	}
	return c.Send(text, kb)
}

func (b *Bot) showInstanceDetail(c tele.Context, arg string) error {
	ctx := context.Background()
	sender := c.Sender()

	id, err := uuid.Parse(arg)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Bot topilmadi!", ShowAlert: true})
	}
	inst, err := b.lifecycleSvc.Get(ctx, sender.ID, id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.Respond(&tele.CallbackResponse{Text: "Bot topilmadi!", ShowAlert: true})
		}
		return err
	}

	name := instanceName(inst)
	emoji, status := instanceStatus(inst.Status)
	text := fmt.Sprintf("🤖 %s\n\n", name)
	text += fmt.Sprintf("📊 Holat: %s %s\n", emoji, status)
	text += fmt.Sprintf("⏳ Qolgan kunlar: %d\n", inst.DaysLeft)
	text += fmt.Sprintf("📅 Yaratilgan: %s\n\n", inst.CreatedAt.Format("02.01.2006 15:04"))
	text += "Quyidagi amallardan birini tanlang:"

	kb := &tele.ReplyMarkup{}
	var rows []tele.Row
	if inst.Status != model.InstanceStatusActive {
		rows = append(rows, kb.Row(kb.Data("▶️ Ishga tushirish", "start_inst", inst.ID.String())))
	}
	rows = append(rows,
		kb.Row(kb.Data("🗑 O'chirish", "delete_inst", inst.ID.String())),
		kb.Row(kb.Data("🔙 Orqaga", "my_insts")),
	)
	kb.Inline(rows...)

	return c.Edit(text, kb)
}

func (b *Bot) startInstance(c tele.Context, arg string) error {
	id, err := uuid.Parse(arg)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Bot topilmadi!", ShowAlert: true})
	}
	err = b.lifecycleSvc.Start(context.Background(), c.Sender().ID, id)
	switch {
	case err == nil:
		if err := c.Respond(&tele.CallbackResponse{Text: "Bot ishga tushirildi!", ShowAlert: true}); err != nil {
			return err
		}
	case errors.Is(err, service.ErrNotFound):
		return c.Respond(&tele.CallbackResponse{Text: "Bot topilmadi!", ShowAlert: true})
	case errors.Is(err, service.ErrIllegalTransition):
		return c.Respond(&tele.CallbackResponse{Text: "Botni ishga tushirib bo'lmaydi!", ShowAlert: true})
	default:
		log.Printf("[Bot] instance start failed: user=%d instance=%s err=%v", c.Sender().ID, id, err)
		return c.Respond(&tele.CallbackResponse{Text: "Xatolik yuz berdi!", ShowAlert: true})
	}
	return b.showMyInstances(c)
}

func (b *Bot) deleteInstance(c tele.Context, arg string) error {
	id, err := uuid.Parse(arg)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Bot topilmadi!", ShowAlert: true})
	}
	if err := b.lifecycleSvc.Delete(context.Background(), c.Sender().ID, id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.Respond(&tele.CallbackResponse{Text: "Bot topilmadi!", ShowAlert: true})
		}
		return err
	}
	if err := c.Respond(&tele.CallbackResponse{Text: "Bot o'chirildi!", ShowAlert: true}); err != nil {
		return err
	}
	return b.showMyInstances(c)
}

const logTailBytes = 1000

func (b *Bot) handleLogs(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()

	instances, err := b.lifecycleSvc.ListForUser(ctx, sender.ID)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		return c.Send("Sizda hali bot yo'q!")
	}

	// The listing is newest first; owners asking for logs mean their most
	// recently created bot.
	latest := instances[0]
	logs, err := b.lifecycleSvc.Logs(ctx, sender.ID, latest.ID, logTailBytes)
	if err != nil {
		return c.Send(fmt.Sprintf("Log o'qishda xato: %v", err))
	}
	if logs == "" {
		return c.Send("Log fayli hali yaratilmagan.")
	}
	return c.Send(fmt.Sprintf("📋 Bot loglari (oxirgi %d belgi):\n\n%s", logTailBytes, logs))
}

func (b *Bot) handleCallback(c tele.Context) error {
	data := strings.TrimPrefix(c.Callback().Data, "\f")
	unique, arg, _ := strings.Cut(data, "|")

	banned, err := b.userSvc.IsBanned(context.Background(), c.Sender().ID)
	if err != nil {
		return err
	}
	if banned {
		return c.Respond(&tele.CallbackResponse{})
	}

	switch unique {
	case "main_menu":
		if err := c.Respond(&tele.CallbackResponse{}); err != nil {
			return err
		}
		return b.showMainMenu(c)
	case "check_subscription":
		return b.checkSubscription(c)
	case "select_tpl":
		return b.withAccess(c, func(tc tele.Context) error { return b.selectTemplate(tc, arg) })
	case "my_insts":
		return b.withAccess(c, b.showMyInstances)
	case "my_inst":
		return b.withAccess(c, func(tc tele.Context) error { return b.showInstanceDetail(tc, arg) })
	case "start_inst":
		return b.withAccess(c, func(tc tele.Context) error { return b.startInstance(tc, arg) })
	case "delete_inst":
		return b.withAccess(c, func(tc tele.Context) error { return b.deleteInstance(tc, arg) })
	}

	if b.isAdmin(c.Sender().ID) {
		return b.handleAdminCallback(c, unique, arg)
	}
	log.Printf("[Bot] unknown callback: %q from user %d", data, c.Sender().ID)
	return c.Respond(&tele.CallbackResponse{})
}

func (b *Bot) withAccess(c tele.Context, next func(tele.Context) error) error {
	defer c.Respond()
	return b.afterGate(c, next)
}

func (b *Bot) checkSubscription(c tele.Context) error {
	passed, err := b.gateSvc.Passed(context.Background(), c.Sender().ID)
	if err != nil {
		return err
	}
	if !passed {
		kb := &tele.ReplyMarkup{}
		kb.Inline(kb.Row(kb.Data("🔄 Qayta tekshirish", "check_subscription")))
		if err := c.Respond(&tele.CallbackResponse{Text: "❌ Siz hali barcha kanallarga obuna bo'lmadingiz!", ShowAlert: true}); err != nil {
			return err
		}
		return c.Edit("❗️ Obuna tekshirilmadi. Kanallarga obuna bo'lib, qayta urinib ko'ring.", kb)
	}
	if err := b.referralSvc.CreditOnboardingBonus(context.Background(), c.Sender().ID); err != nil {
		log.Printf("[Bot] referral settle failed: user=%d err=%v", c.Sender().ID, err)
	}
	if err := c.Respond(&tele.CallbackResponse{Text: "✅ Obuna tasdiqlandi!"}); err != nil {
		return err
	}
	return b.showMainMenu(c)
}

func instanceName(inst *model.InstanceWithTemplate) string {
	if inst.TemplateName != nil && *inst.TemplateName != "" {
		return *inst.TemplateName
	}
	return "Noma'lum bot"
}

func instanceStatus(status model.InstanceStatus) (emoji, label string) {
	switch status {
	case model.InstanceStatusActive:
		return "🟢", "Ishlamoqda"
	case model.InstanceStatusExpired:
		return "🔴", "Muddati tugagan"
	default:
		return "🔴", "To'xtatilgan"
	}
}
