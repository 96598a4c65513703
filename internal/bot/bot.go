package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"upgrade-tracker/internal/config"
	"upgrade-tracker/internal/model"
	"upgrade-tracker/internal/repository"
	"upgrade-tracker/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageName
	stageAccount
	stageLength
	stageStartNow
	stageRepeat
	stageCustomPeriod
	stageSkipRule
	stagePauseAck
)

const (
	cbCompletePrefix = "complete:"
	cbDeletePrefix   = "delete:"
	cbUndoPrefix     = "undo:"
)

const (
	btnSkip          = "⏭️ Skip"
	btnYes           = "Yes"
	btnNo            = "No"
	btnCancelDialog  = "⏪ Cancel input"
	menuLabelNew     = "➕ New timer"
	menuLabelTimers  = "📋 Timers"
	menuLabelReport  = "📊 Report"
	menuLabelHelp    = "ℹ️ Help"
	noAccount        = "No account"
	noAccountKey     = "__no_account__"
	iconRunning      = "🟢"
	iconSoon         = "⏳"
	iconReady        = "✅"
	iconPaused       = "✋"
	iconRepeat       = "♻️"
)

type conversationState struct {
	stage conversationStage
	input service.TaskInput
}

// Bot aggregates the Telegram API with services. It doubles as the
// notification sink for the checker.
type Bot struct {
	api           *tgbotapi.BotAPI
	userRepo      *repository.UserRepository
	settingsRepo  *repository.SettingsRepository
	accountSvc    *service.AccountService
	taskSvc       *service.TaskService
	reportSvc     *service.ReportService
	config        *config.Config
	conversations map[int64]*conversationState
	mu            sync.Mutex
}

func New(token string, userRepo *repository.UserRepository, settingsRepo *repository.SettingsRepository, accountSvc *service.AccountService, taskSvc *service.TaskService, reportSvc *service.ReportService, cfg *config.Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	return &Bot{
		api:           api,
		userRepo:      userRepo,
		settingsRepo:  settingsRepo,
		accountSvc:    accountSvc,
		taskSvc:       taskSvc,
		reportSvc:     reportSvc,
		config:        cfg,
		conversations: make(map[int64]*conversationState),
	}, nil
}

// Notify implements service.Notifier. Delivery failures are logged and
// swallowed so a checker tick never fails over them.
func (b *Bot) Notify(userID uint, title, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := b.userRepo.FindByID(ctx, userID)
	if err != nil {
		log.Printf("notify: user %d: %v", userID, err)
		return
	}
	text := fmt.Sprintf("🔔 <b>%s</b>\n%s", escape(title), escape(body))
	if err := b.sendText(user.TelegramID, text); err != nil {
		log.Printf("notify: send to %d: %v", user.TelegramID, err)
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				log.Printf("handle callback: %v", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				log.Printf("handle message: %v", err)
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Timer creation cancelled.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s %s", msg.From.ID, msg.Command(), msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	}

	if b.hasConversation(msg.From.ID) {
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "I did not get that. Use /new to add a timer or /help for the command list.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "new":
		return b.startNewTimerConversation(ctx, msg)
	case "timers", "tasks":
		return b.handleListTimers(ctx, msg)
	case "done":
		return b.handleDone(ctx, msg)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "undo":
		return b.handleUndo(ctx, msg)
	case "begin":
		return b.handleBegin(ctx, msg)
	case "report":
		return b.handleReport(ctx, msg)
	case "settings":
		return b.handleSettings(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Timer creation cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
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
		"👋 Hi, %s!\n<b>I track long-running upgrade timers and ping you when they finish.</b>\n\nCommands:\n"+
			"• /new — add a timer\n"+
			"• /timers — list current timers\n"+
			"• /begin &lt;id&gt; — start a timer now\n"+
			"• /done &lt;id&gt; — confirm or close a timer\n"+
			"• /delete &lt;id&gt; — delete (undo within a few seconds)\n"+
			"• /undo &lt;id&gt; — cancel a pending delete\n"+
			"• /settings — notification preferences\n"+
			"• /report — full summary\n"+
			"• /cancel — abort current input",
		escape(name),
	)

	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Help</b>\n" +
		"• /new — add a timer step by step\n" +
		"• /timers — list timers with finish buttons\n" +
		"• /begin &lt;id&gt; — start a not-yet-started timer now\n" +
		"• /done &lt;id&gt; — confirm a paused repeat or close a one-shot timer\n" +
		"• /delete &lt;id&gt; — delete a timer; /undo &lt;id&gt; reverses it for a few seconds\n" +
		"• /settings [lead &lt;sec&gt; | due on|off | keep &lt;sec&gt;] — notification preferences\n" +
		"• /report — full summary\n" +
		"Durations look like <code>2d 4h 30m</code>; months and years use <code>mo</code> and <code>y</code>."
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text, err := b.reportSvc.Summary(ctx, *user, time.Now())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not build the report: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, text)
}

// SendDailyReports sends a summary to every known user.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	users, err := b.userRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		text, err := b.reportSvc.Summary(ctx, user, now)
		if err != nil {
			log.Printf("build summary for user %d: %v", user.TelegramID, err)
			continue
		}
		if err := b.sendText(user.TelegramID, text); err != nil {
			log.Printf("send summary to %d: %v", user.TelegramID, err)
		}
	}
	return nil
}

func (b *Bot) startNewTimerConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	b.setConversation(msg.From.ID, &conversationState{stage: stageName})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 New timer.\n<b>Step 1:</b> what is being upgraded?", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageName:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "The name cannot be empty.", cancelKeyboard())
		}
		state.input.Name = text
		state.stage = stageAccount
		return b.sendWithReplyMarkup(msg.Chat.ID, "🎮 Which account is this for? (or press Skip)", skipKeyboard())
	case stageAccount:
		if !isSkipInput(text) {
			state.input.Account = text
		}
		state.stage = stageLength
		return b.sendWithReplyMarkup(msg.Chat.ID, "⏱ How long does the upgrade take? e.g. <code>2d 4h 30m</code>", cancelKeyboard())
	case stageLength:
		length, err := parseLength(text)
		if err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Could not read that duration. Try something like <code>1d 12h</code> or <code>45m</code>.", cancelKeyboard())
		}
		state.input.Length = length
		state.stage = stageStartNow
		return b.sendWithReplyMarkup(msg.Chat.ID, "▶️ Start the timer right now?", yesNoKeyboard())
	case stageStartNow:
		switch {
		case isYesInput(text):
			now := time.Now()
			state.input.StartAt = &now
		case isNoInput(text):
			// Timer stays unscheduled until /begin.
		default:
			return b.sendWithReplyMarkup(msg.Chat.ID, "Press Yes or No.", yesNoKeyboard())
		}
		state.stage = stageRepeat
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔁 Repeat after it finishes?", repeatKeyboard())
	case stageRepeat:
		mode, ok := parseRepeatMode(text)
		if !ok {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Pick one of the repeat options.", repeatKeyboard())
		}
		if mode == model.RepeatCustom {
			state.stage = stageCustomPeriod
			return b.sendWithReplyMarkup(msg.Chat.ID, "📐 Custom period, e.g. <code>3d 12h</code> or <code>1mo</code>:", cancelKeyboard())
		}
		state.input.Repeat = model.NewPresetRule(mode)
		if mode == model.RepeatNone {
			return b.finishTimerCreation(ctx, msg.From, state, msg.Chat.ID)
		}
		state.stage = stageSkipRule
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔕 Skip cycle as <code>notify skip</code> (e.g. <code>2 1</code> = remind twice, skip once), or press Skip.", skipKeyboard())
	case stageCustomPeriod:
		period, err := parseLength(text)
		if err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Could not read that period. Try <code>3d</code> or <code>1mo 15d</code>.", cancelKeyboard())
		}
		rule := model.NewCustomRule(period)
		if !rule.IsRepeating() {
			return b.sendWithReplyMarkup(msg.Chat.ID, "A custom period must be longer than zero.", cancelKeyboard())
		}
		state.input.Repeat = rule
		state.stage = stageSkipRule
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔕 Skip cycle as <code>notify skip</code> (e.g. <code>2 1</code>), or press Skip.", skipKeyboard())
	case stageSkipRule:
		if !isSkipInput(text) {
			remind, skip, err := parseSkipPair(text)
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Use two positive numbers like <code>2 1</code>, or press Skip.", skipKeyboard())
			}
			state.input.Repeat = state.input.Repeat.WithSkip(remind, skip)
		}
		state.stage = stagePauseAck
		return b.sendWithReplyMarkup(msg.Chat.ID, "✋ Pause after each alert until you confirm with /done?", yesNoKeyboard())
	case stagePauseAck:
		switch {
		case isYesInput(text):
			state.input.Repeat = state.input.Repeat.WithPauseUntilAck(true)
		case isNoInput(text):
		default:
			return b.sendWithReplyMarkup(msg.Chat.ID, "Press Yes or No.", yesNoKeyboard())
		}
		return b.finishTimerCreation(ctx, msg.From, state, msg.Chat.ID)
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Dialog reset. Try again with /new.")
	}
}

func (b *Bot) finishTimerCreation(ctx context.Context, from *tgbotapi.User, state *conversationState, chatID int64) error {
	defer b.clearConversation(from.ID)

	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.CreateTask(ctx, user, state.input)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Could not save the timer: %s", escape(err.Error())))
	}

	log.Printf("[info] timer created id=%d user=%d repeating=%t", task.ID, user.ID, task.Repeat.IsRepeating())

	var summary strings.Builder
	summary.WriteString("✅ <b>Timer saved</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>ID:</b> %d\n", task.ID))
	summary.WriteString(fmt.Sprintf("• <b>Name:</b> %s\n", escape(task.Name)))
	if state.input.Account != "" {
		summary.WriteString(fmt.Sprintf("• <b>Account:</b> %s\n", escape(state.input.Account)))
	}
	summary.WriteString(fmt.Sprintf("• <b>Takes:</b> %s\n", task.Length.String()))
	if task.HasFinish() {
		summary.WriteString(fmt.Sprintf("• <b>Done at:</b> %s\n", task.FinishAt.Format("2006-01-02 15:04:05")))
	} else {
		summary.WriteString(fmt.Sprintf("• Not started — run /begin %d when the upgrade starts\n", task.ID))
	}
	if task.Repeat.IsRepeating() {
		summary.WriteString(fmt.Sprintf("• %s repeats after each finish\n", iconRepeat))
	}

	reply := tgbotapi.NewMessage(chatID, strings.TrimSpace(summary.String()))
	reply.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	reply.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(reply); err != nil {
		return err
	}
	return b.sendTimerList(ctx, chatID, user)
}

func (b *Bot) handleListTimers(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.sendTimerList(ctx, msg.Chat.ID, user)
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, err := b.argTaskID(msg, "/done 12")
	if err != nil || taskID == 0 {
		return err
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.completeTimer(ctx, msg.Chat.ID, user, taskID)
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, err := b.argTaskID(msg, "/delete 12")
	if err != nil || taskID == 0 {
		return err
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.requestDeleteTimer(ctx, msg.Chat.ID, user, taskID)
}

func (b *Bot) handleUndo(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, err := b.argTaskID(msg, "/undo 12")
	if err != nil || taskID == 0 {
		return err
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.UndoDelete(ctx, user, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(msg.Chat.ID, "Too late — the timer is already gone.")
		}
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Error: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("↩️ Timer \"%s\" restored.", escape(task.Name)))
}

func (b *Bot) handleBegin(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, err := b.argTaskID(msg, "/begin 12")
	if err != nil || taskID == 0 {
		return err
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.SetStart(ctx, user, taskID, time.Now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(msg.Chat.ID, "Timer not found.")
		}
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Error: %s", escape(err.Error())))
	}

	log.Printf("[info] timer started id=%d user=%d", task.ID, user.ID)
	return b.sendText(msg.Chat.ID, fmt.Sprintf("▶️ \"%s\" started, done at %s.", escape(task.Name), task.FinishAt.Format("2006-01-02 15:04:05")))
}

func (b *Bot) handleSettings(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	settings, err := b.settingsRepo.GetOrCreate(ctx, user.ID)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Error: %s", escape(err.Error())))
	}

	args := strings.Fields(strings.TrimSpace(msg.CommandArguments()))
	if len(args) == 0 {
		return b.sendText(msg.Chat.ID, formatSettings(settings))
	}

	if len(args) != 2 {
		return b.sendText(msg.Chat.ID, "Usage: /settings lead &lt;seconds&gt; | due on|off | keep &lt;seconds&gt;")
	}

	switch strings.ToLower(args[0]) {
	case "lead":
		seconds, err := strconv.Atoi(args[1])
		if err != nil || seconds < 0 {
			return b.sendText(msg.Chat.ID, "Lead must be a non-negative number of seconds.")
		}
		settings.AdvanceNotifySeconds = seconds
	case "due":
		switch strings.ToLower(args[1]) {
		case "on":
			settings.AlsoNotifyAtDue = true
		case "off":
			settings.AlsoNotifyAtDue = false
		default:
			return b.sendText(msg.Chat.ID, "Use /settings due on or /settings due off.")
		}
	case "keep":
		seconds, err := strconv.Atoi(args[1])
		if err != nil || seconds < 0 {
			return b.sendText(msg.Chat.ID, "Keep must be a non-negative number of seconds (0 = forever).")
		}
		settings.CompletedRetentionSeconds = seconds
	default:
		return b.sendText(msg.Chat.ID, "Unknown setting. See /help.")
	}

	if err := b.settingsRepo.Save(ctx, &settings); err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not save settings: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, formatSettings(settings))
}

func formatSettings(s model.Settings) string {
	lead := "off"
	if s.AdvanceNotifySeconds > 0 {
		lead = fmt.Sprintf("%ds before finish", s.AdvanceNotifySeconds)
	}
	due := "on"
	if !s.AlsoNotifyAtDue {
		due = "off (suppressed after an advance alert)"
	}
	keep := "forever"
	if s.CompletedRetentionSeconds > 0 {
		keep = fmt.Sprintf("%ds", s.CompletedRetentionSeconds)
	}
	return "⚙️ <b>Settings</b>\n" +
		fmt.Sprintf("• Advance alert: %s\n", lead) +
		fmt.Sprintf("• Alert at finish: %s\n", due) +
		fmt.Sprintf("• Keep finished timers: %s", keep)
}

func (b *Bot) sendTimerList(ctx context.Context, chatID int64, user *model.User) error {
	settings, err := b.settingsRepo.GetOrCreate(ctx, user.ID)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Error: %s", escape(err.Error())))
	}

	tasks, err := b.taskSvc.ListVisible(ctx, user, settings)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Could not load timers: %s", escape(err.Error())))
	}

	accounts, _ := b.accountSvc.List(ctx, user)
	accountNames := make(map[uint]string)
	for _, acc := range accounts {
		accountNames[acc.ID] = acc.Name
	}

	now := time.Now()
	type accountGroup struct {
		Name  string
		Tasks []model.Task
	}

	groups := make(map[string]*accountGroup)
	order := make([]string, 0, len(tasks))

	for _, task := range tasks {
		if task.PendingDelete {
			continue
		}
		key, display := normalizedAccount(task.AccountID, accountNames)
		group, ok := groups[key]
		if !ok {
			group = &accountGroup{Name: display}
			groups[key] = group
			order = append(order, key)
		}
		group.Tasks = append(group.Tasks, task)
	}

	if len(groups) == 0 {
		return b.sendText(chatID, "No timers yet. Add one with /new.")
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Upgrade timers</b>\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, key := range order {
		section := groups[key]
		builder.WriteString(fmt.Sprintf("<b>%s</b>\n", section.Name))
		for _, task := range section.Tasks {
			builder.WriteString(formatTimer(task, now))
			row := []tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ #%d", task.ID), fmt.Sprintf("%s%d", cbCompletePrefix, task.ID)),
				tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", fmt.Sprintf("%s%d", cbDeletePrefix, task.ID)),
			}
			buttons = append(buttons, row)
		}
		builder.WriteByte('\n')
	}

	reply := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	reply.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(reply)
	return err
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("callback ack: %v", err)
	}

	user, err := b.ensureUser(ctx, cb.From)
	if err != nil {
		return err
	}

	data := cb.Data
	switch {
	case strings.HasPrefix(data, cbCompletePrefix):
		taskID, err := parseTaskID(data, cbCompletePrefix)
		if err != nil {
			return nil
		}
		return b.completeTimer(ctx, cb.Message.Chat.ID, user, taskID)
	case strings.HasPrefix(data, cbDeletePrefix):
		taskID, err := parseTaskID(data, cbDeletePrefix)
		if err != nil {
			return nil
		}
		return b.requestDeleteTimer(ctx, cb.Message.Chat.ID, user, taskID)
	case strings.HasPrefix(data, cbUndoPrefix):
		taskID, err := parseTaskID(data, cbUndoPrefix)
		if err != nil {
			return nil
		}
		task, err := b.taskSvc.UndoDelete(ctx, user, taskID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return b.sendText(cb.Message.Chat.ID, "Too late — the timer is already gone.")
			}
			return err
		}
		return b.sendText(cb.Message.Chat.ID, fmt.Sprintf("↩️ Timer \"%s\" restored.", escape(task.Name)))
	default:
		return nil
	}
}

func (b *Bot) completeTimer(ctx context.Context, chatID int64, user *model.User, taskID uint) error {
	task, err := b.taskSvc.CompleteTask(ctx, user, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(chatID, "Timer not found.")
		}
		return b.sendText(chatID, fmt.Sprintf("Error: %s", escape(err.Error())))
	}

	log.Printf("[info] timer completed id=%d user=%d repeating=%t", task.ID, user.ID, task.Repeat.IsRepeating())
	if task.Repeat.IsRepeating() {
		return b.sendText(chatID, fmt.Sprintf("♻️ \"%s\" confirmed, next finish %s.", escape(task.Name), task.FinishAt.Format("2006-01-02 15:04")))
	}
	return b.sendText(chatID, fmt.Sprintf("✅ \"%s\" closed.", escape(task.Name)))
}

func (b *Bot) requestDeleteTimer(ctx context.Context, chatID int64, user *model.User, taskID uint) error {
	task, err := b.taskSvc.RequestDelete(ctx, user, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(chatID, "Timer not found or already deleted.")
		}
		return b.sendText(chatID, fmt.Sprintf("Error: %s", escape(err.Error())))
	}

	log.Printf("[info] timer pending delete id=%d user=%d", task.ID, user.ID)

	reply := tgbotapi.NewMessage(chatID, fmt.Sprintf("🗑 Timer \"%s\" will be removed in a few seconds.", escape(task.Name)))
	reply.ParseMode = tgbotapi.ModeHTML
	reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("↩️ Undo", fmt.Sprintf("%s%d", cbUndoPrefix, task.ID)),
		),
	)
	_, err = b.api.Send(reply)
	return err
}

func (b *Bot) argTaskID(msg *tgbotapi.Message, example string) (uint, error) {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return 0, b.sendText(msg.Chat.ID, fmt.Sprintf("Give me a timer ID: %s", example))
	}
	taskID64, err := strconv.ParseUint(args, 10, 64)
	if err != nil {
		return 0, b.sendText(msg.Chat.ID, "The timer ID must be a number.")
	}
	return uint(taskID64), nil
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelNew):
		return true, b.startNewTimerConversation(ctx, msg)
	case strings.ToLower(menuLabelTimers):
		return true, b.handleListTimers(ctx, msg)
	case strings.ToLower(menuLabelReport):
		return true, b.handleReport(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.userRepo.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

func parseTaskID(data, prefix string) (uint, error) {
	raw := strings.TrimPrefix(data, prefix)
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(value), nil
}

func formatTimer(task model.Task, now time.Time) string {
	var sb strings.Builder

	icon := iconRunning
	state := task.RecurrenceState(now)
	switch {
	case task.AwaitingAck:
		icon = iconPaused
	case task.Done, state == model.StateExpired:
		icon = iconReady
	case task.HasFinish() && !task.FinishAt.After(now):
		icon = iconReady
	case task.HasFinish() && task.FinishAt.Sub(now) <= time.Hour:
		icon = iconSoon
	}

	sb.WriteString(fmt.Sprintf("%s <b>#%d</b> %s\n", icon, task.ID, escape(task.Name)))
	switch {
	case task.AwaitingAck:
		sb.WriteString("   ✋ waiting for /done\n")
	case !task.HasFinish():
		sb.WriteString(fmt.Sprintf("   ⏸ not started · takes %s · /begin %d\n", task.Length.String(), task.ID))
	case task.FinishAt.After(now):
		sb.WriteString(fmt.Sprintf("   ⏰ done %s · in %s\n", task.FinishAt.Format("2006-01-02 15:04"), task.FinishAt.Sub(now).Round(time.Minute)))
	default:
		sb.WriteString(fmt.Sprintf("   ✅ ready since %s\n", task.FinishAt.Format("2006-01-02 15:04")))
	}
	if task.Repeat.IsRepeating() && !task.Expired {
		sb.WriteString(fmt.Sprintf("   %s repeats\n", iconRepeat))
	}
	sb.WriteByte('\n')
	return sb.String()
}

func normalizedAccount(accountID *uint, accountNames map[uint]string) (string, string) {
	if accountID == nil {
		return noAccountKey, noAccount
	}
	if name, ok := accountNames[*accountID]; ok {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			return noAccountKey, noAccount
		}
		return strings.ToLower(trimmed), escape(trimmed)
	}
	return noAccountKey, noAccount
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelNew),
			tgbotapi.NewKeyboardButton(menuLabelTimers),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelReport),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func yesNoKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnYes),
			tgbotapi.NewKeyboardButton(btnNo),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func repeatKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("Never"),
			tgbotapi.NewKeyboardButton("Daily"),
			tgbotapi.NewKeyboardButton("Weekly"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("Monthly"),
			tgbotapi.NewKeyboardButton("Yearly"),
			tgbotapi.NewKeyboardButton("Custom"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "skip"
}

func isYesInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "yes" || value == "y"
}

func isNoInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "no" || value == "n" || value == "-"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "cancel input" || value == "cancel"
}

func parseRepeatMode(text string) (model.RepeatMode, bool) {
	switch strings.TrimSpace(strings.ToLower(text)) {
	case "never", "none", "no":
		return model.RepeatNone, true
	case "daily":
		return model.RepeatDaily, true
	case "weekly":
		return model.RepeatWeekly, true
	case "monthly":
		return model.RepeatMonthly, true
	case "yearly":
		return model.RepeatYearly, true
	case "custom":
		return model.RepeatCustom, true
	default:
		return model.RepeatNone, false
	}
}

func parseSkipPair(text string) (int, int, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("expected two numbers")
	}
	remind, err := strconv.Atoi(fields[0])
	if err != nil || remind <= 0 {
		return 0, 0, fmt.Errorf("invalid notify count")
	}
	skip, err := strconv.Atoi(fields[1])
	if err != nil || skip <= 0 {
		return 0, 0, fmt.Errorf("invalid skip count")
	}
	return remind, skip, nil
}

func escape(s string) string {
	return html.EscapeString(s)
}
