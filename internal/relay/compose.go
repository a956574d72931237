package relay

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// Attachment is a file to forward. Content is standard base64.
type Attachment struct {
	Name        string
	ContentType string
	Content     string
}

// ProcessedMail is one transformed message ready for relay.
type ProcessedMail struct {
	To               string
	OriginalSubject  string
	OriginalSender   string
	OriginalDate     *time.Time
	ProcessedContent string
	// OriginalBody is appended below the processed content when non-empty.
	OriginalBody string
	Attachments  []Attachment
}

const dateLayout = "2006-01-02 15:04:05"

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "unknown"
	}
	return t.Format(dateLayout)
}

func nl2br(s string) template.HTML {
	return template.HTML(strings.ReplaceAll(template.HTMLEscapeString(s), "\n", "<br>"))
}

var htmlTemplate = template.Must(template.New("relay").Funcs(template.FuncMap{"nl2br": nl2br}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 800px; margin: 0 auto; padding: 20px; }
.header { background: #f8f9fa; padding: 15px; border-radius: 8px; margin-bottom: 20px; border-left: 4px solid #0078d4; }
.label { color: #666; font-weight: 500; }
.content { padding: 20px; border: 1px solid #e9ecef; border-radius: 8px; margin-bottom: 20px; }
.content h2 { margin-top: 0; color: #0078d4; font-size: 18px; }
.original { background: #f8f9fa; padding: 15px; border-radius: 8px; border: 1px solid #e9ecef; }
.original h3 { margin-top: 0; color: #666; font-size: 14px; }
.footer { text-align: center; color: #999; font-size: 12px; margin-top: 30px; padding-top: 20px; border-top: 1px solid #e9ecef; }
</style>
</head>
<body>
<div class="header">
<div><span class="label">Original subject: </span>{{.Subject}}</div>
<div><span class="label">From: </span>{{.Sender}}</div>
<div><span class="label">Date: </span>{{.Date}}</div>
</div>
<div class="content">
<h2>Processed content</h2>
<div>{{nl2br .Content}}</div>
</div>
{{- if .Original}}
<div class="original">
<h3>Original message</h3>
<div>{{nl2br .Original}}</div>
</div>
{{- end}}
<div class="footer">
Relayed automatically<br>
Sent at {{.SentAt}}
</div>
</body>
</html>
`))

type bodyData struct {
	Subject  string
	Sender   string
	Date     string
	Content  string
	Original string
	SentAt   string
}

func renderBodies(m ProcessedMail, now time.Time) (text, html string, err error) {
	data := bodyData{
		Subject:  m.OriginalSubject,
		Sender:   m.OriginalSender,
		Date:     formatDate(m.OriginalDate),
		Content:  m.ProcessedContent,
		Original: m.OriginalBody,
		SentAt:   now.UTC().Format(dateLayout) + " UTC",
	}

	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render html body: %w", err)
	}

	text = fmt.Sprintf("Original subject: %s\nFrom: %s\nDate: %s\n\n--- Processed content ---\n\n%s\n\n---\nRelayed automatically\n",
		data.Subject, data.Sender, data.Date, data.Content)
	return text, buf.String(), nil
}

type decodedAttachment struct {
	name        string
	contentType string
	data        []byte
}

// Compose builds the RFC 5322 message. Attachments that fail to decode are
// returned in skipped and left out of the message.
func Compose(from, subject string, m ProcessedMail, now time.Time) (raw []byte, skipped []string, err error) {
	text, html, err := renderBodies(m, now)
	if err != nil {
		return nil, nil, err
	}

	var files []decodedAttachment
	for _, a := range m.Attachments {
		data, err := base64.StdEncoding.DecodeString(a.Content)
		if err != nil {
			skipped = append(skipped, a.Name)
			continue
		}
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		files = append(files, decodedAttachment{name: a.Name, contentType: ct, data: data})
	}

	var h mail.Header
	h.SetDate(now)
	h.SetSubject(subject)
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: m.To}})
	if err := h.GenerateMessageID(); err != nil {
		return nil, nil, fmt.Errorf("generate message id: %w", err)
	}

	var buf bytes.Buffer
	if len(files) == 0 {
		iw, err := mail.CreateInlineWriter(&buf, h)
		if err != nil {
			return nil, nil, err
		}
		if err := writeAlternative(iw, text, html); err != nil {
			return nil, nil, err
		}
		if err := iw.Close(); err != nil {
			return nil, nil, err
		}
		return buf.Bytes(), skipped, nil
	}

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, nil, err
	}
	iw, err := mw.CreateInline()
	if err != nil {
		return nil, nil, err
	}
	if err := writeAlternative(iw, text, html); err != nil {
		return nil, nil, err
	}
	if err := iw.Close(); err != nil {
		return nil, nil, err
	}

	for _, f := range files {
		var ah mail.AttachmentHeader
		ah.SetContentType(f.contentType, nil)
		ah.SetFilename(f.name)
		ah.Set("Content-Transfer-Encoding", "base64")
		w, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, nil, err
		}
		if _, err := w.Write(f.data); err != nil {
			return nil, nil, err
		}
		if err := w.Close(); err != nil {
			return nil, nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), skipped, nil
}

func writeAlternative(iw *mail.InlineWriter, text, html string) error {
	for _, part := range []struct{ contentType, body string }{
		{"text/plain", text},
		{"text/html", html},
	} {
		var ph mail.InlineHeader
		ph.SetContentType(part.contentType, map[string]string{"charset": "utf-8"})
		ph.Set("Content-Transfer-Encoding", "quoted-printable")
		w, err := iw.CreatePart(ph)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, part.body); err != nil {
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
	}
	return nil
}
