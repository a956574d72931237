package mailbox

import (
	"strings"
	"testing"

	"github.com/emersion/go-imap/v2"
)

func TestIMAPIDRoundTrip(t *testing.T) {
	id := FormatIMAPID("Archive:2024", 42, imap.UID(7))
	if id != "imap:Archive:2024:42:7" {
		t.Fatalf("unexpected id %q", id)
	}
	folder, validity, uid, err := ParseIMAPID(id)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if folder != "Archive:2024" || validity != 42 || uid != 7 {
		t.Fatalf("unexpected parts %q %d %d", folder, validity, uid)
	}

	for _, bad := range []string{"AAA", "imap:INBOX:7", "imap:INBOX:x:7", "imap::1:2"} {
		if _, _, _, err := ParseIMAPID(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestImapFolder(t *testing.T) {
	if imapFolder("Inbox") != "INBOX" || imapFolder("") != "INBOX" || imapFolder("Sent Items") != "Sent Items" {
		t.Fatal("unexpected folder mapping")
	}
}

const multipartFixture = "From: Ann <ann@example.com>\r\n" +
	"To: me@example.com\r\n" +
	"Subject: Report\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=\"inner\"\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"plain body\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>html body</p>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: text/csv\r\n" +
	"Content-Disposition: attachment; filename=\"data.csv\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"YSxiCjEsMgo=\r\n" +
	"--outer--\r\n"

func TestParseMIME(t *testing.T) {
	parsed := parseMIME([]byte(multipartFixture))
	if strings.TrimSpace(parsed.text) != "plain body" {
		t.Fatalf("unexpected text %q", parsed.text)
	}
	if strings.TrimSpace(parsed.html) != "<p>html body</p>" {
		t.Fatalf("unexpected html %q", parsed.html)
	}
	if len(parsed.attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(parsed.attachments))
	}
	a := parsed.attachments[0]
	if a.ID != "1" || a.Name != "data.csv" || a.ContentType != "text/csv" || string(a.content) != "a,b\n1,2\n" || a.Size != 8 {
		t.Fatalf("unexpected attachment %+v content=%q", a.Attachment, a.content)
	}
}

func TestParseMIME_Empty(t *testing.T) {
	parsed := parseMIME(nil)
	if parsed.text != "" || parsed.html != "" || len(parsed.attachments) != 0 {
		t.Fatalf("expected empty result, got %+v", parsed)
	}
}

func TestXOAuth2InitialResponse(t *testing.T) {
	mech, ir, err := newXOAuth2Client("me@example.com", "tok").Start()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if mech != "XOAUTH2" {
		t.Fatalf("unexpected mechanism %q", mech)
	}
	if string(ir) != "user=me@example.com\x01auth=Bearer tok\x01\x01" {
		t.Fatalf("unexpected initial response %q", ir)
	}
}

func TestNewFactory(t *testing.T) {
	if _, ok := NewFactory(FactoryConfig{Backend: "imap"})("me@example.com", "tok").(*IMAPClient); !ok {
		t.Fatal("expected IMAP backend")
	}
	if _, ok := NewFactory(FactoryConfig{Backend: "graph"})("me@example.com", "tok").(*GraphClient); !ok {
		t.Fatal("expected Graph backend")
	}
}
