package mailer

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/smtp"
	"strings"
	"time"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Template selects the code email layout
type Template string

const (
	TemplateVerifyEmail   Template = "verify_email"
	TemplatePasswordReset Template = "password_reset"
)

var ErrInvalidAddress = errors.New("invalid recipient address")

type layout struct {
	Subject string
	Heading string
	Icon    string
	Accent  string
	Intro   string
	Outro   string
}

var layouts = map[Template]layout{
	TemplateVerifyEmail: {
		Subject: "StudyMate - Verify your email address",
		Heading: "Email Verification",
		Icon:    "📚",
		Accent:  "#6366f1",
		Intro:   "Welcome to StudyMate! Your verification code is:",
		Outro:   "If you didn't create a StudyMate account, please ignore this email.",
	},
	TemplatePasswordReset: {
		Subject: "StudyMate - Reset your password",
		Heading: "Password Reset",
		Icon:    "🔐",
		Accent:  "#ef4444",
		Intro:   "We received a request to reset your password. Use this code:",
		Outro:   "If you didn't request a password reset, ignore this email and your password will remain unchanged.",
	},
}

var codeTemplate = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="margin:0;padding:0;background-color:#f8fafc;font-family:'Segoe UI',Tahoma,Geneva,Verdana,sans-serif;">
    <div style="max-width:500px;margin:40px auto;background:#ffffff;border-radius:16px;overflow:hidden;border:1px solid #e2e8f0;">
        <div style="background:{{.Accent}};padding:32px;text-align:center;">
            <h1 style="color:#fff;margin:0;font-size:28px;font-weight:700;">{{.Icon}} StudyMate</h1>
            <p style="color:rgba(255,255,255,0.85);margin:8px 0 0;font-size:14px;">{{.Heading}}</p>
        </div>

        <div style="padding:32px;">
            <p style="color:#1e293b;font-size:16px;line-height:1.6;margin:0 0 24px;">
                Hi <strong>{{.Name}}</strong>,
            </p>
            <p style="color:#475569;font-size:14px;line-height:1.6;margin:0 0 24px;">{{.Intro}}</p>

            <div style="border:2px dashed {{.Accent}};border-radius:12px;padding:24px;text-align:center;margin:0 0 24px;">
                <span style="font-size:36px;font-weight:800;letter-spacing:8px;color:{{.Accent}};font-family:'Courier New',monospace;">{{.Code}}</span>
            </div>

            <p style="color:#64748b;font-size:13px;line-height:1.5;margin:0 0 8px;">
                ⏰ This code expires in <strong style="color:#f59e0b;">{{.ExpiryMinutes}} minutes</strong>.
            </p>
            <p style="color:#64748b;font-size:13px;line-height:1.5;margin:0;">{{.Outro}}</p>
        </div>

        <div style="padding:16px 32px;border-top:1px solid #e2e8f0;text-align:center;">
            <p style="color:#94a3b8;font-size:12px;margin:0;">© 2026 StudyMate. All rights reserved.</p>
        </div>
    </div>
</body>
</html>`))

// Mailer handles sending emails
type Mailer struct {
	config Config
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New creates a new Mailer instance
func New(cfg Config) *Mailer {
	return &Mailer{config: cfg, send: smtp.SendMail}
}

// SendOTP renders the template for kind and mails the code to toEmail
func (m *Mailer) SendOTP(kind Template, toEmail, name, code string, expiresIn time.Duration) error {
	l, ok := layouts[kind]
	if !ok {
		return fmt.Errorf("unknown email template %q", kind)
	}

	body, err := Render(kind, name, code, expiresIn)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return m.deliver(toEmail, l.Subject, body)
}

// Render returns the HTML body of a code email
func Render(kind Template, name, code string, expiresIn time.Duration) (string, error) {
	l, ok := layouts[kind]
	if !ok {
		return "", fmt.Errorf("unknown email template %q", kind)
	}
	if name == "" {
		name = "there"
	}

	minutes := int(expiresIn.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	var buf bytes.Buffer
	err := codeTemplate.Execute(&buf, map[string]interface{}{
		"Subject":       l.Subject,
		"Heading":       l.Heading,
		"Icon":          l.Icon,
		"Accent":        l.Accent,
		"Intro":         l.Intro,
		"Outro":         l.Outro,
		"Name":          name,
		"Code":          code,
		"ExpiryMinutes": minutes,
	})
	return buf.String(), err
}

func buildMessage(fromName, from, to, subject, htmlBody string) []byte {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", fromName, from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)
	return msg.Bytes()
}

// deliver sends an email via SMTP
func (m *Mailer) deliver(to, subject, htmlBody string) error {
	if to == "" || strings.ContainsAny(to, "\r\n") {
		return ErrInvalidAddress
	}

	addr := fmt.Sprintf("%s:%s", m.config.Host, m.config.Port)

	var auth smtp.Auth
	if m.config.Username != "" && m.config.Password != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	msg := buildMessage(m.config.FromName, m.config.From, to, subject, htmlBody)
	if err := m.send(addr, auth, m.config.From, []string{to}, msg); err != nil {
		log.Printf("❌ Failed to send email to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	log.Printf("📧 Email sent to %s: %s", to, subject)
	return nil
}
