package bot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/EgorLis/presencebot/internal/config"
	"github.com/EgorLis/presencebot/internal/supervisor"
)

var (
	headerColor = color.New(color.FgRed, color.Bold)
	optionColor = color.New(color.FgYellow)
	failColor   = color.New(color.FgRed)
	okColor     = color.New(color.FgGreen)
	noticeColor = color.New(color.FgCyan)
)

// TokenChecker проверяет токен аккаунта (rest.Client).
type TokenChecker interface {
	SetToken(token string)
	ValidateToken(ctx context.Context) (bool, error)
}

// Menu — текстовое меню поверх Bot. Ввод построчный.
type Menu struct {
	bot *Bot
	in  *bufio.Reader
	out io.Writer
	mu  sync.Mutex // out пишут ещё и хуки шлюза

	// ReadSecret читает токен; по умолчанию — обычная строка из in.
	ReadSecret func() (string, error)
	// ClearScreen — чистить терминал перед каждым меню.
	ClearScreen bool
}

func NewMenu(b *Bot, in io.Reader, out io.Writer) *Menu {
	m := &Menu{bot: b, in: bufio.NewReader(in), out: out}
	m.ReadSecret = m.readLine
	return m
}

// TerminalSecret — чтение без эха с терминала fd.
func TerminalSecret(fd int, out io.Writer) func() (string, error) {
	return func() (string, error) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		return string(b), err
	}
}

// Notice печатает асинхронное уведомление (подключение/отключение шлюза).
func (m *Menu) Notice(format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	noticeColor.Fprintf(m.out, "\n"+format+"\n", args...)
}

// ========================= старт =========================

// EnsureToken спрашивает токен, пока /users/@me его не примет, и сохраняет.
func (m *Menu) EnsureToken(ctx context.Context, tc TokenChecker) error {
	tok := cleanValue(m.bot.cfg.Snapshot().Token)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if tok == "" {
			m.prompt("Enter your token: ")
			s, err := m.ReadSecret()
			if err != nil {
				return err
			}
			if tok = cleanValue(s); tok == "" {
				continue
			}
		}

		tc.SetToken(tok)
		ok, err := tc.ValidateToken(ctx)
		switch {
		case ok:
			return m.bot.cfg.Update(func(c *config.Config) { c.Token = tok })
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			m.fail("Could not verify token: %v", err)
		default:
			m.fail("Invalid token!")
		}
		tok = ""
	}
}

// PromptMissing дозапрашивает незаполненные (или испорченные) обязательные поля.
func (m *Menu) PromptMissing() error {
	cfg := m.bot.cfg.Snapshot()

	if strings.TrimSpace(cfg.Message) == "" {
		s, err := m.askRequired("Enter the message to advertise (use \\n for new lines): ")
		if err != nil {
			return err
		}
		cfg.Message = unescapeNewlines(s)
	}
	if strings.TrimSpace(cfg.DMResponse) == "" {
		s, err := m.askRequired("Enter the auto DM response: ")
		if err != nil {
			return err
		}
		cfg.DMResponse = unescapeNewlines(s)
	}
	if _, err := cfg.DelaySeconds(); err != nil {
		d, err := m.askDelay()
		if err != nil {
			return err
		}
		cfg.Delay = d
	}
	if _, err := config.ParseStatus(cfg.Status); err != nil {
		st, err := m.askStatus()
		if err != nil {
			return err
		}
		cfg.Status = st
	}

	return m.bot.cfg.Update(func(c *config.Config) {
		c.Message = cfg.Message
		c.DMResponse = cfg.DMResponse
		c.Delay = cfg.Delay
		c.Status = cfg.Status
	})
}

// ========================= меню =========================

// Run крутит главное меню до "Leave" (nil) или конца ввода.
func (m *Menu) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.show("Home", "Advertiser", "Onliner", "Close DM channels", "Leave")
		choice, err := m.ask("Choose an option: ")
		if err != nil {
			return err
		}

		switch choice {
		case "1":
			err = m.advertiserMenu(ctx)
		case "2":
			err = m.onlinerMenu(ctx)
		case "3":
			m.closeDMs(ctx)
		case "4":
			return nil
		default:
			m.fail("Invalid option!")
		}
		if err != nil {
			return err
		}
	}
}

func (m *Menu) advertiserMenu(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		autoDM := "Enable auto DM response"
		if m.bot.Running(LoopDMResponder) {
			autoDM = "Disable auto DM response"
		}
		m.show("Advertiser",
			"Start advertising",
			"Add channel",
			"Remove channel",
			"Change message",
			"Change delay",
			"Change DM response",
			autoDM,
			"Change webhook",
			"Leave",
		)
		choice, err := m.ask("Choose an option: ")
		if err != nil {
			return err
		}

		switch choice {
		case "1":
			err = m.advertise()
		case "2":
			err = m.addChannel()
		case "3":
			err = m.removeChannel()
		case "4":
			err = m.changeText("Enter the new message (use \\n for new lines): ", func(c *config.Config, s string) { c.Message = s })
		case "5":
			err = m.changeDelay()
		case "6":
			err = m.changeText("Enter the new auto DM response: ", func(c *config.Config, s string) { c.DMResponse = s })
		case "7":
			m.toggleAutoDM()
		case "8":
			err = m.changeWebhook()
		case "9":
			return nil
		default:
			m.fail("Invalid option!")
		}
		if err != nil {
			return err
		}
	}
}

func (m *Menu) onlinerMenu(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		title := fmt.Sprintf("Onliner (gateway: %s)", m.bot.GatewayState())
		m.show(title, "Start onliner", "Change status", "Change custom status", "Leave")
		choice, err := m.ask("Choose an option: ")
		if err != nil {
			return err
		}

		switch choice {
		case "1":
			m.startOnliner()
		case "2":
			err = m.changeStatus(ctx)
		case "3":
			err = m.changeCustomStatus(ctx)
		case "4":
			return nil
		default:
			m.fail("Invalid option!")
		}
		if err != nil {
			return err
		}
	}
}

// ========================= действия =========================

func (m *Menu) advertise() error {
	if len(m.bot.cfg.Snapshot().Channels) == 0 {
		m.fail("No channels configured! Add one first.")
		return nil
	}
	if err := m.bot.StartAdvertiser(); err != nil {
		m.fail("Could not start advertising: %v", err)
		return nil
	}
	m.ok("Advertising started! Press Enter to stop advertising!")
	_, err := m.readLine()
	m.bot.StopAdvertiser()
	if err != nil {
		return err
	}
	m.ok("Advertising stopped.")
	return nil
}

func (m *Menu) addChannel() error {
	id, err := m.askChannelID()
	if err != nil {
		return err
	}
	added, err := m.bot.cfg.AddChannel(id)
	switch {
	case err != nil:
		m.fail("Could not save config: %v", err)
	case added:
		m.ok("Channel %s added.", id)
	default:
		m.fail("Channel %s is already in the list.", id)
	}
	return nil
}

func (m *Menu) removeChannel() error {
	id, err := m.askChannelID()
	if err != nil {
		return err
	}
	removed, err := m.bot.cfg.RemoveChannel(id)
	switch {
	case err != nil:
		m.fail("Could not save config: %v", err)
	case removed:
		m.ok("Channel %s removed.", id)
	default:
		m.fail("Channel %s is not in the list.", id)
	}
	return nil
}

func (m *Menu) changeText(question string, set func(*config.Config, string)) error {
	s, err := m.askRequired(question)
	if err != nil {
		return err
	}
	s = unescapeNewlines(s)
	if err := m.bot.cfg.Update(func(c *config.Config) { set(c, s) }); err != nil {
		m.fail("Could not save config: %v", err)
		return nil
	}
	m.ok("Saved.")
	return nil
}

func (m *Menu) changeDelay() error {
	d, err := m.askDelay()
	if err != nil {
		return err
	}
	if err := m.bot.cfg.SetDelay(d); err != nil {
		m.fail("Could not save config: %v", err)
		return nil
	}
	m.ok("Delay set to %s seconds.", d)
	return nil
}

// changeWebhook: пустой URL выключает уведомления; пинг спрашиваем только
// при заданном URL.
func (m *Menu) changeWebhook() error {
	hook, err := m.askWebhookURL()
	if err != nil {
		return err
	}
	ping := ""
	if hook != "" {
		s, err := m.ask("Enter the role or user to ping, e.g. <@&123> (empty for none): ")
		if err != nil {
			return err
		}
		ping = cleanValue(s)
	}

	if err := m.bot.cfg.Update(func(c *config.Config) {
		c.Webhook = hook
		c.WebhookPing = ping
	}); err != nil {
		m.fail("Could not save config: %v", err)
		return nil
	}
	if hook == "" {
		m.ok("Webhook disabled.")
		return nil
	}
	m.ok("Webhook saved.")
	return nil
}

func (m *Menu) toggleAutoDM() {
	on, err := m.bot.ToggleAutoDM()
	switch {
	case err != nil:
		m.fail("Could not toggle auto DM response: %v", err)
	case on:
		m.ok("Auto DM response enabled.")
	default:
		m.ok("Auto DM response disabled.")
	}
}

func (m *Menu) startOnliner() {
	err := m.bot.StartOnliner()
	switch {
	case errors.Is(err, supervisor.ErrAlreadyRunning):
		m.fail("Onliner is already running!")
	case err != nil:
		m.fail("Could not start onliner: %v", err)
	default:
		m.ok("Onliner started!")
	}
}

func (m *Menu) changeStatus(ctx context.Context) error {
	st, err := m.askStatus()
	if err != nil {
		return err
	}
	changed, err := m.bot.cfg.SetStatus(st)
	if err != nil {
		m.fail("Could not save config: %v", err)
		return nil
	}
	if !changed {
		m.ok("Status is already %s.", st)
		return nil
	}
	m.pushPresence(ctx)
	return nil
}

func (m *Menu) changeCustomStatus(ctx context.Context) error {
	s, err := m.ask("Enter the new custom status (empty to clear): ")
	if err != nil {
		return err
	}
	if err := m.bot.cfg.Update(func(c *config.Config) { c.CustomStatus = s }); err != nil {
		m.fail("Could not save config: %v", err)
		return nil
	}
	m.pushPresence(ctx)
	return nil
}

func (m *Menu) pushPresence(ctx context.Context) {
	if err := m.bot.UpdatePresence(ctx); err != nil {
		m.fail("Failed to update status: %v", err)
		return
	}
	m.ok("Status updated successfully!")
}

func (m *Menu) closeDMs(ctx context.Context) {
	n, err := m.bot.CloseDMs(ctx)
	if err != nil {
		m.fail("Closed %d DM channels, some failed: %v", n, err)
		return
	}
	m.ok("Closed %d DM channels.", n)
}

// ========================= ввод =========================

func (m *Menu) askRequired(question string) (string, error) {
	for {
		s, err := m.ask(question)
		if err != nil {
			return "", err
		}
		if s != "" {
			return s, nil
		}
		m.fail("Value cannot be empty!")
	}
}

func (m *Menu) askDelay() (string, error) {
	for {
		s, err := m.ask("Enter the delay between sweeps in seconds: ")
		if err != nil {
			return "", err
		}
		if _, err := config.ParseDelay(s); err != nil {
			m.fail("Delay must be a positive whole number of seconds!")
			continue
		}
		return s, nil
	}
}

func (m *Menu) askStatus() (string, error) {
	q := fmt.Sprintf("Enter status (%s): ", strings.Join(config.Statuses, ", "))
	for {
		s, err := m.ask(q)
		if err != nil {
			return "", err
		}
		st, err := config.ParseStatus(s)
		if err != nil {
			m.fail("Invalid status!")
			continue
		}
		return st, nil
	}
}

func (m *Menu) askWebhookURL() (string, error) {
	for {
		s, err := m.ask("Enter the webhook URL (empty to disable): ")
		if err != nil {
			return "", err
		}
		s = cleanValue(s)
		if s == "" {
			return "", nil
		}
		if u, err := url.Parse(s); err == nil && (u.Scheme == "https" || u.Scheme == "http") && u.Host != "" {
			return s, nil
		}
		m.fail("Webhook must be an http(s) URL!")
	}
}

func (m *Menu) askChannelID() (string, error) {
	for {
		s, err := m.ask("Enter the channel ID: ")
		if err != nil {
			return "", err
		}
		s = cleanValue(s)
		if isSnowflake(s) {
			return s, nil
		}
		m.fail("Channel ID must be a number!")
	}
}

func (m *Menu) ask(question string) (string, error) {
	m.prompt(question)
	s, err := m.readLine()
	return strings.TrimSpace(s), err
}

// readLine — строка без перевода; последняя строка без '\n' тоже считается.
func (m *Menu) readLine() (string, error) {
	s, err := m.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}

// ========================= вывод =========================

func (m *Menu) show(title string, options ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ClearScreen {
		fmt.Fprint(m.out, "\033[H\033[2J")
	}
	headerColor.Fprintf(m.out, "\n=== %s ===\n", title)
	for i, o := range options {
		optionColor.Fprintf(m.out, "[%d] %s\n", i+1, o)
	}
}

func (m *Menu) prompt(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprint(m.out, s)
}

func (m *Menu) ok(format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	okColor.Fprintf(m.out, format+"\n", args...)
}

func (m *Menu) fail(format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	failColor.Fprintf(m.out, format+"\n", args...)
}

// cleanValue убирает пробелы и кавычки, которые часто прилетают при вставке.
func cleanValue(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}

func unescapeNewlines(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}

func isSnowflake(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
