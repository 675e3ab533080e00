package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"math"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"weekly-planner/internal/config"
	"weekly-planner/internal/model"
	"weekly-planner/internal/planner"
	"weekly-planner/internal/repository"
	"weekly-planner/internal/service"
	"weekly-planner/internal/week"
	pkgLog "weekly-planner/pkg/log"
)

const (
	menuLabelWeek  = "🗓 Week"
	menuLabelInbox = "💡 Inbox"
	menuLabelStats = "📊 Stats"
	menuLabelHelp  = "ℹ️ Help"
	menuLabelPrev  = "⬅️ Prev"
	menuLabelNext  = "➡️ Next"
)

// Bot aggregates Telegram API with services.
type Bot struct {
	api         *tgbotapi.BotAPI
	userRepo    *repository.UserRepository
	plannerSvc  *service.PlannerService
	reminderSvc *service.ReminderService
	limiter     *rate.Limiter
	now         func() time.Time
	l           pkgLog.Logger
}

func New(cfg config.Config, userRepo *repository.UserRepository, plannerSvc *service.PlannerService, reminderSvc *service.ReminderService, l pkgLog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	l.Infof(context.Background(), "bot authorized on account %s", api.Self.UserName)

	sendRate := cfg.Bot.SendRate
	if sendRate <= 0 {
		sendRate = 20
	}

	return &Bot{
		api:         api,
		userRepo:    userRepo,
		plannerSvc:  plannerSvc,
		reminderSvc: reminderSvc,
		limiter:     rate.NewLimiter(rate.Limit(sendRate), 1),
		now:         time.Now,
		l:           l,
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.l.Info(ctx, "start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil || update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			continue
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.l.Errorf(ctx, "handle message: %v", err)
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
		return b.sendText(msg.Chat.ID, "I did not get that. Try /add to plan a task or /help for the command list.")
	}

	b.l.Debugf(ctx, "command from %d: /%s %s", msg.From.ID, msg.Command(), msg.CommandArguments())
	return b.handleCommand(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "week":
		return b.withSession(ctx, msg, b.handleWeek)
	case "next":
		return b.withSession(ctx, msg, b.navigate(func(p *planner.Planner) { p.GoToNextWeek() }))
	case "prev":
		return b.withSession(ctx, msg, b.navigate(func(p *planner.Planner) { p.GoToPrevWeek() }))
	case "today":
		return b.withSession(ctx, msg, b.navigate(func(p *planner.Planner) { p.GoToToday() }))
	case "add":
		return b.withSession(ctx, msg, b.handleAdd)
	case "inbox":
		return b.withSession(ctx, msg, b.handleInbox)
	case "done":
		return b.withSession(ctx, msg, b.handleDone)
	case "del", "delete":
		return b.withSession(ctx, msg, b.handleDelete)
	case "move":
		return b.withSession(ctx, msg, b.handleMove)
	case "schedule":
		return b.withSession(ctx, msg, b.handleSchedule)
	case "dup":
		return b.withSession(ctx, msg, b.handleDuplicate)
	case "challenge":
		return b.withSession(ctx, msg, b.handleChallenge)
	case "honor":
		return b.withSession(ctx, msg, b.handleHonor)
	case "rest":
		return b.withSession(ctx, msg, b.handleRest)
	case "review":
		return b.withSession(ctx, msg, b.handleReview)
	case "stats":
		return b.withSession(ctx, msg, b.handleStats)
	case "sort":
		return b.withSession(ctx, msg, b.handleSort)
	case "export":
		return b.withSession(ctx, msg, b.handleExport)
	case "weeks":
		return b.handleWeeks(ctx, msg)
	default:
		return b.sendText(msg.Chat.ID, "Unsupported command. See /help.")
	}
}

type sessionHandler func(ctx context.Context, msg *tgbotapi.Message, sess *service.Session) error

func (b *Bot) withSession(ctx context.Context, msg *tgbotapi.Message, h sessionHandler) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	ctx = pkgLog.WithAccount(ctx, user.ID)
	sess, err := b.plannerSvc.Open(ctx, user.ID)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not open your planner: %s", escape(err.Error())))
	}
	return h(ctx, msg, sess)
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}

	text := fmt.Sprintf(
		"👋 Hi, %s!\n<b>I am your weekly planner.</b> Weeks run Saturday to Friday.\n\n"+
			"• /add — plan a task\n"+
			"• /week — this week, numbered\n"+
			"• /inbox — ideas without a date\n"+
			"• /help — every command",
		escape(name),
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Commands</b>\n" +
		"• /week, /next, /prev, /today — show and switch weeks\n" +
		"• /add [date|inbox] [HH:MM] [!high|!medium|!low|!meeting] title [| note]\n" +
		"   dates: today, tomorrow, sat…fri, 2026-02-10, 10.02\n" +
		"• /inbox — brain dump\n" +
		"• /done N — toggle task N of the last list\n" +
		"• /del N — delete task N\n" +
		"• /move N date|inbox [position] — move or reorder\n" +
		"• /schedule N date — plan inbox item N\n" +
		"• /dup N date — copy task N\n" +
		"• /challenge text — weekly challenge\n" +
		"• /honor [date] — tick the challenge for a day\n" +
		"• /rest [date] — set or clear the rest day\n" +
		"• /review good | bad | learned — weekly review\n" +
		"• /stats, /weeks — progress\n" +
		"• /sort meeting,priority,order — display order\n" +
		"• /export — JSON backup"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleWeek(ctx context.Context, msg *tgbotapi.Message, sess *service.Session) error {
	text, ids := b.reminderSvc.WeekOverview(sess.Planner)
	sess.SetListing(ids)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) navigate(move func(p *planner.Planner)) sessionHandler {
	return func(ctx context.Context, msg *tgbotapi.Message, sess *service.Session) error {
		move(sess.Planner)
		if err := b.plannerSvc.Sync(ctx, sess); err != nil {
			b.l.Warnf(ctx, "sync after navigation: %v", err)
		}
		return b.handleWeek(ctx, msg, sess)
	}
}

func (b *Bot) handleInbox(ctx context.Context, msg *tgbotapi.Message, sess *service.Session) error {
	text, ids := b.reminderSvc.InboxList(sess.Planner)
	sess.SetListing(ids)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleAdd(ctx context.Context, msg *tgbotapi.Message, sess *service.Session) error {
	in, err := parseAdd(msg.CommandArguments(), b.now(), sess.Planner.CurrentDate())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Usage: <code>/add [date|inbox] [HH:MM] [!priority] title</code>")
	}
	task, err := sess.Planner.AddTask(in)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not add the task: %s", escape(err.Error())))
	}

	b.l.Infof(ctx, "task added date=%q inbox=%t", task.Date, task.IsBrainDump)
	where := "the inbox"
	if !task.IsBrainDump {
		where = dayLabel(task.Date)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("➕ «%s» planned for %s.", escape(shortTitle(task.Title, 64)), where))
}

// pick resolves "N" against the session's last listing.
func (b *Bot) pick(msg *tgbotapi.Message, sess *service.Session, n int) (model.Task, bool, error) {
	id, ok := sess.Pick(n)
	if !ok {
		return model.Task{}, false, b.sendText(msg.Chat.ID, fmt.Sprintf("There is no task %d in the last list. Open /week or /inbox first.", n))
	}
	task, ok := sess.Planner.Task(sess.Planner.Canonical(id))
	if !ok {
		return model.Task{}, false, b.sendText(msg.Chat.ID, "That task is gone. Open the list again.")
	}
	return task, true, nil
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message, sess *service.Session) error {
	n, err := parseNumber(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Usage: <code>/done 3</code>")
	}
	task, ok, err := b.pick(msg, sess, n)
	if !ok {
		return err
	}
	task, err = sess.Planner.ToggleComplete(task.ID)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	if task.IsCompleted {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ «%s» done.", escape(shortTitle(task.Title, 64))))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("↩️ «%s» is open again.", escape(shortTitle(task.Title, 64))))
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message, sess *service.Session) error {
	n, err := parseNumber(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Usage: <code>/del 3</code>")
	}
	task, ok, err := b.pick(msg, sess, n)
	if !ok {
		return err
	}
	if err := sess.Planner.DeleteTask(task.ID); err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🗑 «%s» deleted.", escape(shortTitle(task.Title, 64))))
}

func (b *Bot) handleMove(ctx context.Context, msg *tgbotapi.Message, sess *service.Session) error {
	args, err := parseMove(msg.CommandArguments(), b.now(), sess.Planner.CurrentDate())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Usage: <code>/move 3 fri [position]</code> or <code>/move 3 inbox</code>")
	}
	task, ok, err := b.pick(msg, sess, args.number)
	if !ok {
		return err
	}

	index := math.MaxInt
	if args.position > 0 {
		index = args.position - 1
	}
	moved, err := sess.Planner.MoveTask(planner.MoveRequest{
		ID:       task.ID,
		FromDate: task.Date,
		ToDate:   args.date,
		NewIndex: index,
	})
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	where := "the inbox"
	if !moved.IsBrainDump {
		where = dayLabel(moved.Date)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("↪️ «%s» moved to %s.", escape(shortTitle(moved.Title, 64)), where))
}

func (b *Bot) handleSchedule(ctx context.Context, msg *tgbotapi.Message, sess *service.Session) error {
	n, date, inbox, err := parseNumberAndDate(msg.CommandArguments(), b.now(), sess.Planner.CurrentDate())
	if err != nil || inbox {
		return b.sendText(msg.Chat.ID, "Usage: <code>/schedule 2 tue</code>")
	}
	task, ok, err := b.pick(msg, sess, n)
	if !ok {
		return err
	}
	scheduled, err := sess.Planner.ScheduleTask(task.ID, date)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("📌 «%s» planned for %s.", escape(shortTitle(scheduled.Title, 64)), dayLabel(date)))
}

func (b *Bot) handleDuplicate(ctx context.Context, msg *tgbotapi.Message, sess *service.Session) error {
	n, date, _, err := parseNumberAndDate(msg.CommandArguments(), b.now(), sess.Planner.CurrentDate())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Usage: <code>/dup 3 tomorrow</code>")
	}
	task, ok, err := b.pick(msg, sess, n)
	if !ok {
		return err
	}
	copied, err := sess.Planner.DuplicateTask(task.ID, date)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	where := "the inbox"
	if !copied.IsBrainDump {
		where = dayLabel(copied.Date)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("📄 «%s» copied to %s.", escape(shortTitle(copied.Title, 64)), where))
}

func (b *Bot) handleChallenge(ctx context.Context, msg *tgbotapi.Message, sess *service.Session) error {
	meta := sess.Planner.SetWeeklyChallenge(msg.CommandArguments())
	if meta.WeeklyChallenge == "" {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("🎯 Challenge for %s cleared.", meta.DisplayID))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🎯 Challenge for %s: %s", meta.DisplayID, escape(meta.WeeklyChallenge)))
}

// dayArg reads an optional date argument, defaulting to today.
func (b *Bot) dayArg(msg *tgbotapi.Message, sess *service.Session) (string, error) {
	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		return week.FormatDate(b.now()), nil
	}
	date, inbox, err := parseDate(arg, b.now(), sess.Planner.CurrentDate())
	if err == nil && inbox {
		err = errBadDate
	}
	return date, err
}

func (b *Bot) handleHonor(ctx context.Context, msg *tgbotapi.Message, sess *service.Session) error {
	date, err := b.dayArg(msg, sess)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Usage: <code>/honor [date]</code>")
	}
	meta, err := sess.Planner.ToggleChallengeDay(date)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	mark := "⬜"
	if meta.HasProgress(date) {
		mark = "✅"
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🎯 %s %s · %d/7", dayLabel(date), mark, len(meta.ChallengeProgress)))
}

func (b *Bot) handleRest(ctx context.Context, msg *tgbotapi.Message, sess *service.Session) error {
	date, err := b.dayArg(msg, sess)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Usage: <code>/rest [date]</code>")
	}
	meta, err := sess.Planner.SetRestDay(date)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	if meta.RestDay == "" {
		return b.sendText(msg.Chat.ID, "🛌 Rest day cleared.")
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🛌 Rest day: %s.", dayLabel(meta.RestDay)))
}

func (b *Bot) handleReview(ctx context.Context, msg *tgbotapi.Message, sess *service.Session) error {
	good, bad, learned, err := parseReview(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Usage: <code>/review what went well | what did not | what I learned</code>")
	}
	r := sess.Planner.SaveReview(good, bad, learned)
	return b.sendText(msg.Chat.ID, fmt.Sprintf("📝 Review for %s saved.", r.WeekDisplayID))
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message, sess *service.Session) error {
	return b.sendText(msg.Chat.ID, b.reminderSvc.StatsText(sess.Planner))
}

func (b *Bot) handleSort(ctx context.Context, msg *tgbotapi.Message, sess *service.Session) error {
	if strings.TrimSpace(msg.CommandArguments()) == "" {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Current order: <code>%s</code>", joinKeys(sess.Planner.SortPreferences())))
	}
	keys, err := parseSortKeys(msg.CommandArguments())
	if err == nil {
		err = sess.Planner.UpdateSortPreferences(keys)
	}
	if err != nil {
		return b.sendText(msg.Chat.ID, "Use each of meeting, priority and order once, e.g. <code>/sort priority,meeting,order</code>")
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("Display order: <code>%s</code>", joinKeys(keys)))
}

func (b *Bot) handleExport(ctx context.Context, msg *tgbotapi.Message, sess *service.Session) error {
	data, err := sess.Planner.Export()
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	name := fmt.Sprintf("planner-%s.json", sess.Planner.WeekDisplayID())
	doc := tgbotapi.NewDocument(msg.Chat.ID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = "Backup of the loaded week and inbox"
	_, err = b.api.Send(doc)
	return err
}

func (b *Bot) handleWeeks(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	weeks, err := b.plannerSvc.Overview(pkgLog.WithAccount(ctx, user.ID), user.ID)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, b.reminderSvc.WeeksList(weeks))
}

// SendDailyDigests sends today's plan to every known user.
func (b *Bot) SendDailyDigests(ctx context.Context) error {
	return b.broadcast(ctx, func(p service.PlannerView) (string, bool) {
		return b.reminderSvc.DailyDigest(p, b.now()), true
	})
}

// SendReviewReminders asks every user without a review for this week to write one.
func (b *Bot) SendReviewReminders(ctx context.Context) error {
	return b.broadcast(ctx, b.reminderSvc.ReviewReminder)
}

// ResyncAll refreshes the open planner sessions from the store.
func (b *Bot) ResyncAll(ctx context.Context) {
	b.plannerSvc.ResyncAll(ctx)
}

// broadcast renders the current week for every user. Sessions browsing
// another week keep their place.
func (b *Bot) broadcast(ctx context.Context, render func(p service.PlannerView) (string, bool)) error {
	users, err := b.userRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
		userCtx := pkgLog.WithAccount(ctx, user.ID)
		view, err := b.plannerSvc.View(userCtx, user.ID)
		if err != nil {
			b.l.Warnf(userCtx, "load week for %d: %v", user.TelegramID, err)
			continue
		}
		text, ok := render(view)
		if !ok {
			continue
		}
		if err := b.sendText(user.TelegramID, text); err != nil {
			b.l.Warnf(userCtx, "send to %d: %v", user.TelegramID, err)
		}
	}
	return nil
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.userRepo.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

func (b *Bot) replyError(chatID int64, err error) error {
	switch {
	case errors.Is(err, planner.ErrTaskNotFound):
		return b.sendText(chatID, "Task not found.")
	case errors.Is(err, planner.ErrNotInBrainDump):
		return b.sendText(chatID, "Only inbox items can be scheduled. Use /move for planned tasks.")
	default:
		return b.sendText(chatID, fmt.Sprintf("Error: %s", escape(err.Error())))
	}
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	switch strings.TrimSpace(msg.Text) {
	case menuLabelWeek:
		return true, b.withSession(ctx, msg, b.handleWeek)
	case menuLabelInbox:
		return true, b.withSession(ctx, msg, b.handleInbox)
	case menuLabelStats:
		return true, b.withSession(ctx, msg, b.handleStats)
	case menuLabelPrev:
		return true, b.withSession(ctx, msg, b.navigate(func(p *planner.Planner) { p.GoToPrevWeek() }))
	case menuLabelNext:
		return true, b.withSession(ctx, msg, b.navigate(func(p *planner.Planner) { p.GoToNextWeek() }))
	case menuLabelHelp:
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelPrev),
			tgbotapi.NewKeyboardButton(menuLabelWeek),
			tgbotapi.NewKeyboardButton(menuLabelNext),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelInbox),
			tgbotapi.NewKeyboardButton(menuLabelStats),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

// dayLabel renders 2026-02-10 as "Tue 10.02".
func dayLabel(date string) string {
	t, err := week.ParseDate(date)
	if err != nil {
		return date
	}
	return t.Format("Mon 02.01")
}

func joinKeys(keys []planner.SortKey) string {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = string(k)
	}
	return strings.Join(names, ",")
}

func escape(s string) string {
	return html.EscapeString(s)
}
