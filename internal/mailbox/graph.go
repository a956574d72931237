package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/pysugar/outlook-relay/internal/util"
)

const (
	DefaultGraphURL = "https://graph.microsoft.com/v1.0"

	listSelect   = "id,subject,from,receivedDateTime,bodyPreview,hasAttachments,isRead"
	detailSelect = "id,subject,from,toRecipients,receivedDateTime,body,bodyPreview,hasAttachments,isRead"
)

// GraphClient talks to the Microsoft Graph mail endpoints on behalf of one user.
type GraphClient struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// NewGraphClient returns a client that authenticates every request with accessToken.
// base may carry a transport to wrap; nil uses http.DefaultTransport.
func NewGraphClient(baseURL, accessToken string, base http.RoundTripper, timeout time.Duration) *GraphClient {
	if baseURL == "" {
		baseURL = DefaultGraphURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
		Base:   base,
	}
	return &GraphClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: transport, Timeout: timeout},
		now:        time.Now,
	}
}

type graphEmailAddress struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

func (g graphEmailAddress) toAddress() Address {
	return Address{Name: g.EmailAddress.Name, Address: g.EmailAddress.Address}
}

type graphMessage struct {
	ID               string              `json:"id"`
	Subject          string              `json:"subject"`
	From             *graphEmailAddress  `json:"from"`
	ToRecipients     []graphEmailAddress `json:"toRecipients"`
	ReceivedDateTime string              `json:"receivedDateTime"`
	BodyPreview      string              `json:"bodyPreview"`
	HasAttachments   bool                `json:"hasAttachments"`
	IsRead           bool                `json:"isRead"`
	Body             *struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
}

func (m graphMessage) summary() Summary {
	s := Summary{
		ID:             m.ID,
		Subject:        m.Subject,
		Preview:        m.BodyPreview,
		HasAttachments: m.HasAttachments,
		IsRead:         m.IsRead,
	}
	if m.From != nil {
		s.From = m.From.toAddress()
	}
	if m.ReceivedDateTime != "" {
		if t, err := time.Parse(time.RFC3339, m.ReceivedDateTime); err == nil {
			t = t.UTC()
			s.ReceivedAt = &t
		}
	}
	return s
}

type graphAttachment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// ListFilter builds the $filter expression for a listing.
func ListFilter(opts ListOptions, now time.Time) string {
	filters := []string{
		"receivedDateTime ge " + since(now, opts.Days).Format("2006-01-02T15:04:05") + "Z",
	}
	if opts.Sender != "" {
		filters = append(filters, "from/emailAddress/address eq '"+strings.ReplaceAll(opts.Sender, "'", "''")+"'")
	}
	if opts.UnreadOnly {
		filters = append(filters, "isRead eq false")
	}
	return strings.Join(filters, " and ")
}

func (c *GraphClient) ListMessages(ctx context.Context, opts ListOptions) ([]Summary, error) {
	folder := opts.Folder
	if folder == "" {
		folder = "Inbox"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	q := url.Values{}
	q.Set("$top", strconv.Itoa(limit))
	q.Set("$orderby", "receivedDateTime desc")
	q.Set("$select", listSelect)
	q.Set("$filter", ListFilter(opts, c.now()))

	var page struct {
		Value []graphMessage `json:"value"`
	}
	endpoint := c.baseURL + "/me/mailFolders/" + url.PathEscape(folder) + "/messages?" + q.Encode()
	if err := c.getJSON(ctx, "list messages", endpoint, &page); err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(page.Value))
	for _, m := range page.Value {
		out = append(out, m.summary())
	}
	return out, nil
}

func (c *GraphClient) GetDetail(ctx context.Context, messageID string) (*Detail, error) {
	q := url.Values{}
	q.Set("$select", detailSelect)

	var m graphMessage
	endpoint := c.baseURL + "/me/messages/" + url.PathEscape(messageID) + "?" + q.Encode()
	if err := c.getJSON(ctx, "get message", endpoint, &m); err != nil {
		return nil, err
	}

	d := &Detail{Summary: m.summary(), BodyText: m.BodyPreview}
	for _, r := range m.ToRecipients {
		d.To = append(d.To, r.toAddress())
	}
	if m.Body != nil {
		if strings.EqualFold(m.Body.ContentType, "text") {
			d.BodyText = m.Body.Content
		} else {
			d.BodyHTML = m.Body.Content
		}
	}
	return d, nil
}

func (c *GraphClient) ListAttachments(ctx context.Context, messageID string) ([]Attachment, error) {
	var page struct {
		Value []graphAttachment `json:"value"`
	}
	endpoint := c.baseURL + "/me/messages/" + url.PathEscape(messageID) + "/attachments"
	if err := c.getJSON(ctx, "list attachments", endpoint, &page); err != nil {
		return nil, err
	}

	out := make([]Attachment, 0, len(page.Value))
	for _, a := range page.Value {
		out = append(out, Attachment{ID: a.ID, Name: a.Name, Size: a.Size, ContentType: a.ContentType})
	}
	return out, nil
}

func (c *GraphClient) GetAttachmentContent(ctx context.Context, messageID, name string) ([]byte, error) {
	list, err := c.ListAttachments(ctx, messageID)
	if err != nil {
		return nil, err
	}
	id, ok := attachmentByName(list, name)
	if !ok {
		return nil, nil
	}
	return c.GetAttachment(ctx, messageID, id)
}

func (c *GraphClient) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	endpoint := c.baseURL + "/me/messages/" + url.PathEscape(messageID) + "/attachments/" + url.PathEscape(attachmentID) + "/$value"
	return c.get(ctx, "get attachment", endpoint)
}

func (c *GraphClient) getJSON(ctx context.Context, op, endpoint string, out interface{}) error {
	body, err := c.get(ctx, op, endpoint)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func (c *GraphClient) get(ctx context.Context, op, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: util.TruncateLog(string(body), 512)}
	}
	return body, nil
}
