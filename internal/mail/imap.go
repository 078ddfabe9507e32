package mail

import (
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"

	"github.com/yeye296/Xserver-VPS-Renew/internal/config"
)

// Session is a single authenticated connection to the code mailbox. UIDs are
// returned in ascending mailbox order; callers scan newest-first.
type Session interface {
	SearchUnseen(c Criteria) ([]uint32, error)
	Fetch(uid uint32) (*Message, error)
	MarkSeen(uid uint32) error
	Close() error
}

// Dialer opens mailbox sessions. The poller dials a fresh session per pass so
// a dropped connection never outlives one loop iteration.
type Dialer interface {
	Dial() (Session, error)
}

// IMAPDialer connects to the configured IMAP mailbox over TLS.
type IMAPDialer struct {
	cfg *config.MailConfig
}

// NewIMAPDialer creates a dialer for the configured mailbox.
func NewIMAPDialer(cfg *config.MailConfig) *IMAPDialer {
	return &IMAPDialer{cfg: cfg}
}

// Dial connects, authenticates and selects INBOX.
func (d *IMAPDialer) Dial() (Session, error) {
	c, err := client.DialTLS(d.cfg.IMAPAddr(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(d.cfg.IMAPUser, d.cfg.IMAPPassword); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	if _, err := c.Select("INBOX", false); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	return &imapSession{client: c}, nil
}

type imapSession struct {
	client *client.Client
}

// SearchUnseen finds unread messages matching the server-side criteria.
func (s *imapSession) SearchUnseen(cr Criteria) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	for name, value := range cr.Header {
		criteria.Header.Add(name, value)
	}

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	return uids, nil
}

// Fetch retrieves one full message and decodes its headers and text body.
func (s *imapSession) Fetch(uid uint32) (*Message, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqset, items, messages)
	}()

	var raw *imap.Message
	for msg := range messages {
		raw = msg
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message %d: %w", uid, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("message %d not found", uid)
	}

	msg := &Message{UID: uid}

	if raw.Envelope != nil {
		msg.Subject = decodeHeader(raw.Envelope.Subject)
		if len(raw.Envelope.From) > 0 {
			msg.From = formatAddress(raw.Envelope.From[0])
		}
	}

	if r := raw.GetBody(section); r != nil {
		body, err := readTextBody(r)
		if err != nil {
			return nil, err
		}
		msg.Body = body
	}

	return msg, nil
}

// MarkSeen sets the \Seen flag. The flag is monotone: a consumed message is
// never unmarked.
func (s *imapSession) MarkSeen(uid uint32) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	if err := s.client.UidStore(seqset, item, flags, nil); err != nil {
		return fmt.Errorf("failed to mark message %d as read: %w", uid, err)
	}
	return nil
}

// Close logs out of the session.
func (s *imapSession) Close() error {
	return s.client.Logout()
}

// readTextBody collects the text/plain and text/html parts of a message into
// one string, skipping attachments.
func readTextBody(r io.Reader) (string, error) {
	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return "", fmt.Errorf("failed to read message: %w", err)
	}

	var parts []string

	if mr := entity.MultipartReader(); mr != nil {
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", fmt.Errorf("failed to read part: %w", err)
			}

			disposition, _, _ := p.Header.ContentDisposition()
			if disposition == "attachment" {
				continue
			}

			mediaType, _, _ := p.Header.ContentType()
			if mediaType == "text/plain" || mediaType == "text/html" {
				content, err := io.ReadAll(p.Body)
				if err != nil {
					return "", fmt.Errorf("failed to read part body: %w", err)
				}
				parts = append(parts, string(content))
			}
		}
	} else {
		content, err := io.ReadAll(entity.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read message body: %w", err)
		}
		parts = append(parts, string(content))
	}

	return strings.Join(parts, "\n"), nil
}

var headerDecoder = mime.WordDecoder{CharsetReader: charset.Reader}

// decodeHeader decodes RFC 2047 encoded-words (Japanese subjects arrive as
// ISO-2022-JP or UTF-8 encoded-words). On decode failure the raw value is
// kept so filtering still sees something.
func decodeHeader(v string) string {
	if v == "" {
		return ""
	}
	decoded, err := headerDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

func formatAddress(addr *imap.Address) string {
	if addr == nil {
		return ""
	}
	email := addr.Address()
	if addr.PersonalName != "" {
		return decodeHeader(addr.PersonalName) + " <" + email + ">"
	}
	return email
}
