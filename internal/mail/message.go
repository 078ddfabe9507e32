package mail

// Message is one retrieved mailbox message. It lives only for the duration of
// a single fetch pass and is never persisted.
type Message struct {
	UID     uint32
	From    string
	Subject string
	Body    string
}

// SearchText returns the combined search surface used for code extraction:
// subject, sender and body concatenated, mirroring how a human would scan the
// message.
func (m *Message) SearchText() string {
	return "SUBJECT:\n" + m.Subject + "\n\nFROM:\n" + m.From + "\n\nBODY:\n" + m.Body
}
