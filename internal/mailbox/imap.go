package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/pysugar/outlook-relay/internal/util"
)

const (
	DefaultIMAPAddr = "outlook.office365.com:993"
	previewLength   = 255
)

// IMAPClient reads the mailbox over IMAPS, authenticating with XOAUTH2.
// Every call opens its own connection.
type IMAPClient struct {
	addr     string
	username string
	token    string
	now      func() time.Time
}

func NewIMAPClient(addr, username, accessToken string) *IMAPClient {
	if addr == "" {
		addr = DefaultIMAPAddr
	}
	return &IMAPClient{addr: addr, username: username, token: accessToken, now: time.Now}
}

// FormatIMAPID encodes a message locator as imap:<folder>:<uidvalidity>:<uid>.
func FormatIMAPID(folder string, uidValidity uint32, uid imap.UID) string {
	return fmt.Sprintf("imap:%s:%d:%d", folder, uidValidity, uint32(uid))
}

// ParseIMAPID reverses FormatIMAPID. Folder names may themselves contain colons.
func ParseIMAPID(id string) (folder string, uidValidity uint32, uid imap.UID, err error) {
	rest, ok := strings.CutPrefix(id, "imap:")
	if !ok {
		return "", 0, 0, fmt.Errorf("not an imap message id: %q", id)
	}
	i := strings.LastIndex(rest, ":")
	if i <= 0 {
		return "", 0, 0, fmt.Errorf("malformed imap message id: %q", id)
	}
	j := strings.LastIndex(rest[:i], ":")
	if j <= 0 {
		return "", 0, 0, fmt.Errorf("malformed imap message id: %q", id)
	}
	v, err := strconv.ParseUint(rest[j+1:i], 10, 32)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed uidvalidity in %q: %w", id, err)
	}
	u, err := strconv.ParseUint(rest[i+1:], 10, 32)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed uid in %q: %w", id, err)
	}
	return rest[:j], uint32(v), imap.UID(u), nil
}

func imapFolder(name string) string {
	if name == "" || strings.EqualFold(name, "inbox") {
		return "INBOX"
	}
	return name
}

func (c *IMAPClient) connect(ctx context.Context) (*imapclient.Client, func(), error) {
	client, err := imapclient.DialTLS(c.addr, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to IMAP %s: %w", c.addr, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	cleanup := func() {
		stop()
		_ = client.Logout().Wait()
	}

	if err := client.Authenticate(newXOAuth2Client(c.username, c.token)); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("IMAP authentication failed for %s: %w", c.username, err)
	}
	return client, cleanup, nil
}

func (c *IMAPClient) ListMessages(ctx context.Context, opts ListOptions) ([]Summary, error) {
	client, cleanup, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	folder := imapFolder(opts.Folder)
	sel, err := client.Select(folder, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("selecting %s: %w", folder, err)
	}

	criteria := &imap.SearchCriteria{Since: since(c.now(), opts.Days)}
	if opts.Sender != "" {
		criteria.Header = []imap.SearchCriteriaHeaderField{{Key: "From", Value: opts.Sender}}
	}
	if opts.UnreadOnly {
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	}

	data, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", folder, err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	section := &imap.FetchItemBodySection{Peek: true}
	fetch := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})
	defer fetch.Close()

	var out []Summary
	for {
		msg := fetch.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			continue
		}
		parsed := parseMIME(buf.FindBodySection(section))
		s := summaryFromBuffer(buf, folder, sel.UIDValidity)
		s.Preview = util.Truncate(strings.TrimSpace(parsed.text), previewLength)
		s.HasAttachments = len(parsed.attachments) > 0
		out = append(out, s)
	}
	if err := fetch.Close(); err != nil {
		return out, fmt.Errorf("fetching %s: %w", folder, err)
	}

	// newest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (c *IMAPClient) fetchOne(ctx context.Context, messageID string) (*imapclient.FetchMessageBuffer, *parsedBody, error) {
	folder, validity, uid, err := ParseIMAPID(messageID)
	if err != nil {
		return nil, nil, err
	}
	client, cleanup, err := c.connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer cleanup()

	sel, err := client.Select(folder, nil).Wait()
	if err != nil {
		return nil, nil, fmt.Errorf("selecting %s: %w", folder, err)
	}
	if sel.UIDValidity != validity {
		return nil, nil, fmt.Errorf("message %s is stale: folder uidvalidity is now %d", messageID, sel.UIDValidity)
	}

	section := &imap.FetchItemBodySection{Peek: true}
	fetch := client.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})
	defer fetch.Close()

	msg := fetch.Next()
	if msg == nil {
		return nil, nil, fmt.Errorf("message %s not found", messageID)
	}
	buf, err := msg.Collect()
	if err != nil {
		return nil, nil, fmt.Errorf("collecting %s: %w", messageID, err)
	}
	parsed := parseMIME(buf.FindBodySection(section))
	return buf, parsed, nil
}

func (c *IMAPClient) GetDetail(ctx context.Context, messageID string) (*Detail, error) {
	buf, parsed, err := c.fetchOne(ctx, messageID)
	if err != nil {
		return nil, err
	}
	folder, validity, _, _ := ParseIMAPID(messageID)

	d := &Detail{
		Summary:  summaryFromBuffer(buf, folder, validity),
		BodyHTML: parsed.html,
		BodyText: parsed.text,
	}
	d.Preview = util.Truncate(strings.TrimSpace(parsed.text), previewLength)
	d.HasAttachments = len(parsed.attachments) > 0
	if buf.Envelope != nil {
		for _, to := range buf.Envelope.To {
			d.To = append(d.To, Address{Name: to.Name, Address: to.Addr()})
		}
	}
	return d, nil
}

func (c *IMAPClient) ListAttachments(ctx context.Context, messageID string) ([]Attachment, error) {
	_, parsed, err := c.fetchOne(ctx, messageID)
	if err != nil {
		return nil, err
	}
	out := make([]Attachment, 0, len(parsed.attachments))
	for _, a := range parsed.attachments {
		out = append(out, a.Attachment)
	}
	return out, nil
}

func (c *IMAPClient) GetAttachmentContent(ctx context.Context, messageID, name string) ([]byte, error) {
	_, parsed, err := c.fetchOne(ctx, messageID)
	if err != nil {
		return nil, err
	}
	for _, a := range parsed.attachments {
		if a.Name == name {
			return a.content, nil
		}
	}
	return nil, nil
}

func (c *IMAPClient) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	_, parsed, err := c.fetchOne(ctx, messageID)
	if err != nil {
		return nil, err
	}
	for _, a := range parsed.attachments {
		if a.ID == attachmentID {
			return a.content, nil
		}
	}
	return nil, fmt.Errorf("attachment %s not found in %s", attachmentID, messageID)
}

func summaryFromBuffer(buf *imapclient.FetchMessageBuffer, folder string, validity uint32) Summary {
	s := Summary{ID: FormatIMAPID(folder, validity, buf.UID)}
	if env := buf.Envelope; env != nil {
		s.Subject = env.Subject
		if !env.Date.IsZero() {
			t := env.Date.UTC()
			s.ReceivedAt = &t
		}
		if len(env.From) > 0 {
			s.From = Address{Name: env.From[0].Name, Address: env.From[0].Addr()}
		}
	}
	for _, f := range buf.Flags {
		if f == imap.FlagSeen {
			s.IsRead = true
		}
	}
	return s
}

type parsedAttachment struct {
	Attachment
	content []byte
}

type parsedBody struct {
	text        string
	html        string
	attachments []parsedAttachment
}

// parseMIME splits a raw RFC 5322 message into its text bodies and
// attachments. Attachment ids are their 1-based ordinal among attachment parts.
func parseMIME(raw []byte) *parsedBody {
	out := &parsedBody{}
	if len(raw) == 0 {
		return out
	}
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		out.text = string(raw)
		return out
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}
		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain") && out.text == "":
				out.text = string(body)
			case strings.HasPrefix(contentType, "text/html") && out.html == "":
				out.html = string(body)
			}
		case *mail.AttachmentHeader:
			name, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			out.attachments = append(out.attachments, parsedAttachment{
				Attachment: Attachment{
					ID:          strconv.Itoa(len(out.attachments) + 1),
					Name:        name,
					Size:        int64(len(body)),
					ContentType: contentType,
				},
				content: body,
			})
		}
	}
	return out
}
