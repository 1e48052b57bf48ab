package support

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// MailConfig configures outbound notification mail. An empty Host or
// From leaves the mailer unconfigured; sends are then skipped, not
// failed, so a missing mail setup never breaks a support conversation.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type Mailer struct {
	config MailConfig
	logger *slog.Logger
}

func NewMailer(config MailConfig, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Port == 0 {
		config.Port = 587
	}
	return &Mailer{config: config, logger: logger}
}

func (m *Mailer) Configured() bool {
	return m.config.Host != "" && m.config.From != ""
}

// SendPlanChangeNotification mails the confirmation after a plan-change
// request. Best effort: an unconfigured mailer skips silently.
func (m *Mailer) SendPlanChangeNotification(to, customerName, requestID, currentPlan, newPlan, effectiveDate string) error {
	subject := "【プラン変更申請受付】お手続き内容のご確認"
	body := fmt.Sprintf(
		"%s 様\n\nプラン変更申請を受け付けました。\n\n受付番号: %s\n現在のプラン: %s\n変更後のプラン: %s\n適用開始: %s\n\n変更内容に誤りがある場合は、お電話にてお問い合わせください。\n",
		customerName, requestID, currentPlan, newPlan, effectiveDate)
	return m.send(to, subject, body)
}

// SendConversationTranscript mails the conversation record to the
// customer after the call.
func (m *Mailer) SendConversationTranscript(to, customerName string, lines []string) error {
	subject := "【お問い合わせ内容のご確認】本日の会話記録"
	body := fmt.Sprintf("%s 様\n\n本日のお問い合わせ内容をお送りします。\n\n%s\n",
		customerName, strings.Join(lines, "\n"))
	return m.send(to, subject, body)
}

func (m *Mailer) send(to, subject, body string) error {
	if !m.Configured() {
		m.logger.Info("mailer not configured, skipping send", "to", to)
		return nil
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		m.config.From, to, subject, body)

	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)
	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}
	if err := smtp.SendMail(addr, auth, m.config.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	m.logger.Info("mail sent", "to", to, "subject", subject)
	return nil
}
