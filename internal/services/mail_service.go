package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strings"
	texttemplate "text/template"
	"time"

	"payflow/internal/config"
)

type IMailService interface {
	SendMailToNotifyUser(ctx context.Context, to, subject, body, ctaText, ctaURL string) error
}

type smtpMailService struct {
	cfg     config.SMTPConfig
	appName string
	html    *template.Template
	text    *texttemplate.Template
	dialer  *net.Dialer
}

func NewSMTPMailService(cfg config.SMTPConfig, appName string) IMailService {
	return &smtpMailService{
		cfg:     cfg,
		appName: appName,
		html:    template.Must(template.New("notifyHTML").Parse(notifyHTMLTemplate)),
		text:    texttemplate.Must(texttemplate.New("notifyText").Parse(notifyTextTemplate)),
		dialer:  &net.Dialer{Timeout: 10 * time.Second},
	}
}

type EmailData struct {
	Title     string
	Intro     string
	ButtonURL string
	ButtonTxt string
	AppName   string
	Year      int
}

const notifyHTMLTemplate = `<!doctype html>
<html>
<head><meta charset="UTF-8"><title>{{.Title}}</title></head>
<body style="font-family:Arial,sans-serif;background:#f8fafc;color:#0f172a;padding:24px">
  <div style="max-width:560px;margin:0 auto;background:#fff;border-radius:12px;padding:32px">
    <div style="font-weight:700;color:#2563eb;text-transform:uppercase">{{.AppName}}</div>
    <h1 style="font-size:22px">{{.Title}}</h1>
    <p style="line-height:1.6">{{.Intro}}</p>
    {{if .ButtonURL}}<p><a href="{{.ButtonURL}}" style="background:#2563eb;color:#fff;padding:12px 24px;border-radius:8px;text-decoration:none">{{.ButtonTxt}}</a></p>{{end}}
    <p style="color:#64748b;font-size:12px">&copy; {{.Year}} {{.AppName}}</p>
  </div>
</body>
</html>`

const notifyTextTemplate = `{{.Title}}

{{.Intro}}
{{if .ButtonURL}}
{{.ButtonTxt}}: {{.ButtonURL}}
{{end}}
{{.AppName}} (c) {{.Year}}
`

func (s *smtpMailService) SendMailToNotifyUser(ctx context.Context, to, subject, body, ctaText, ctaURL string) error {
	data := EmailData{
		Title:     subject,
		Intro:     body,
		ButtonURL: ctaURL,
		ButtonTxt: ctaText,
		AppName:   s.appName,
		Year:      time.Now().Year(),
	}

	var hb, tb bytes.Buffer
	if err := s.html.Execute(&hb, data); err != nil {
		return err
	}
	if err := s.text.Execute(&tb, data); err != nil {
		return err
	}
	return s.send(ctx, to, buildMessage(s.formatFromHeader(), to, subject, tb.String(), hb.String()))
}

func buildMessage(from, to, subject, textBody, htmlBody string) []byte {
	boundary := fmt.Sprintf("mixed_%d", time.Now().UnixNano())

	var msg bytes.Buffer
	write := func(format string, a ...any) { _, _ = fmt.Fprintf(&msg, format, a...) }

	write("From: %s\r\n", from)
	write("To: %s\r\n", to)
	write("Subject: %s\r\n", mime.BEncoding.Encode("UTF-8", subject))
	write("Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	write("MIME-Version: 1.0\r\n")
	write("Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	write("--%s\r\n", boundary)
	write("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	write("%s\r\n\r\n", textBody)

	write("--%s\r\n", boundary)
	write("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	write("%s\r\n\r\n", htmlBody)

	write("--%s--\r\n", boundary)
	return msg.Bytes()
}

// send uses implicit TLS on port 465 and STARTTLS everywhere else.
func (s *smtpMailService) send(ctx context.Context, to string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var conn net.Conn
	var err error
	tlsCfg := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
	if s.cfg.Port == 465 {
		conn, err = (&tls.Dialer{NetDialer: s.dialer, Config: tlsCfg}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = s.dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return err
	}
	defer c.Quit()

	if s.cfg.Port != 465 {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err = c.StartTLS(tlsCfg); err != nil {
				return err
			}
		}
	}
	if s.cfg.Username != "" {
		if err = c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return err
		}
	}
	if err = c.Mail(s.cfg.From); err != nil {
		return err
	}
	if err = c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err = w.Write(msg); err != nil {
		return err
	}
	return w.Close()
}

func (s *smtpMailService) formatFromHeader() string {
	name := strings.TrimSpace(s.appName)
	if name == "" {
		return s.cfg.From
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("UTF-8", name), s.cfg.From)
}
