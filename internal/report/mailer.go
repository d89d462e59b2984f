package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"atsbeaters/internal/config"
	apperrors "atsbeaters/internal/errors"
)

// ErrCodeMailFailed is returned when the SMTP exchange fails
const ErrCodeMailFailed = "MAIL_FAILED"

// Attachment is a file carried by an email
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// sendFunc matches smtp.SendMail
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer delivers reports over SMTP
type Mailer struct {
	cfg    config.MailConfig
	send   sendFunc
	now    func() time.Time
	logger *apperrors.Logger
}

// NewMailer validates cfg and creates a Mailer
func NewMailer(cfg config.MailConfig, logger *apperrors.Logger) (*Mailer, error) {
	if !cfg.Enabled {
		return nil, apperrors.NewConfigError(apperrors.ErrCodeInvalidConfig,
			"mail delivery is disabled (set mail.enabled)", nil)
	}
	if cfg.Host == "" || cfg.From == "" {
		return nil, apperrors.NewConfigError(apperrors.ErrCodeInvalidConfig,
			"mail.host and mail.from are required", nil)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Mailer{cfg: cfg, send: smtp.SendMail, now: time.Now, logger: logger}, nil
}

var summaryTemplate = template.Must(template.New("summary").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: auto; border: 1px solid #eee; padding: 20px;">
<h2 style="color: #4F46E5;">ATSBeaters: Your Optimization Report is Ready</h2>
<p>Hello,</p>
<p>We've successfully processed your resume. Your current ATS Score is: <strong>{{.Score}}%</strong></p>
{{- if .Recommendations}}
<p><strong>Top Recommendations:</strong></p>
<ul>
{{- range .Recommendations}}
<li>{{.}}</li>
{{- end}}
</ul>
{{- end}}
<hr>
<p>Find your fully rewritten, ATS-compatible resume and cover letter attached to this email.</p>
<div style="background: #F3F4F6; padding: 15px; border-radius: 8px;">
<p><strong>Pro Tip:</strong> Ensure you use the exact keywords highlighted in our analysis before applying.</p>
</div>
</div>`))

// SummaryHTML renders the email body for rep
func SummaryHTML(rep *Report) (string, error) {
	var buf bytes.Buffer
	err := summaryTemplate.Execute(&buf, struct {
		Score           int
		Recommendations []string
	}{rep.Score(), rep.TopRecommendations(5)})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Subject is the email subject for rep
func Subject(rep *Report) string {
	return fmt.Sprintf("ATSBeaters Report: Score %d%%", rep.Score())
}

// SendReport emails the report summary to one recipient
func (m *Mailer) SendReport(to string, rep *Report, attachments ...Attachment) error {
	body, err := SummaryHTML(rep)
	if err != nil {
		return apperrors.NewInternalError(ErrCodeMailFailed, "failed to render email", err)
	}
	return m.Send(to, Subject(rep), body, attachments...)
}

// Send delivers an HTML message with optional attachments
func (m *Mailer) Send(to, subject, htmlBody string, attachments ...Attachment) error {
	if to == "" || subject == "" {
		return apperrors.NewValidationError(apperrors.ErrCodeInvalidInput,
			"recipient and subject are required", nil)
	}

	msg, err := m.buildMessage(to, subject, htmlBody, attachments)
	if err != nil {
		return apperrors.NewInternalError(ErrCodeMailFailed, "failed to build email", err)
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := m.cfg.Host + ":" + strconv.Itoa(m.cfg.Port)
	if err := m.send(addr, auth, m.cfg.From, []string{to}, msg); err != nil {
		return apperrors.NewNetworkError(ErrCodeMailFailed, "failed to send email", err).
			WithContext("smtp_host", m.cfg.Host)
	}

	if m.logger != nil {
		m.logger.Info("Report emailed", "to", to, "attachments", len(attachments))
	}
	return nil
}

func (m *Mailer) buildMessage(to, subject, htmlBody string, attachments []Attachment) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	headers := []string{
		"From: " + m.cfg.From,
		"To: " + to,
		"Subject: " + mime.QEncoding.Encode("utf-8", subject),
		"Date: " + m.now().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed; boundary=" + mw.Boundary(),
	}
	buf.WriteString(strings.Join(headers, "\r\n") + "\r\n\r\n")

	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, err
	}
	if err := writeBase64(part, []byte(htmlBody)); err != nil {
		return nil, err
	}

	for _, a := range attachments {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {ct},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": a.Name})},
		})
		if err != nil {
			return nil, err
		}
		if err := writeBase64(part, a.Data); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeBase64 wraps encoded lines at 76 characters
func writeBase64(w io.Writer, data []byte) error {
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 76 {
		if _, err := w.Write([]byte(enc[:76] + "\r\n")); err != nil {
			return err
		}
		enc = enc[76:]
	}
	_, err := w.Write([]byte(enc + "\r\n"))
	return err
}
