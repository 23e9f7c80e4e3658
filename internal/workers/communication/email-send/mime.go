// internal/workers/communication/email-send/mime.go
package emailsend

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BuildMIME renders msg as a multipart/alternative message with a single
// text/html part. Missing Date and Message-ID are filled in on msg.
func BuildMIME(msg *Message) ([]byte, error) {
	if msg.Date.IsZero() {
		msg.Date = time.Now()
	}
	if msg.MessageID == "" {
		msg.MessageID = newMessageID(msg.From)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=utf-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, fmt.Errorf("create html part: %w", err)
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(msg.HTMLBody)); err != nil {
		return nil, fmt.Errorf("encode html part: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("encode html part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	from := (&mail.Address{Name: msg.FromName, Address: msg.From}).String()
	to := (&mail.Address{Address: msg.To}).String()

	var out bytes.Buffer
	writeHeader(&out, "MIME-Version", "1.0")
	writeHeader(&out, "From", from)
	writeHeader(&out, "To", to)
	writeHeader(&out, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader(&out, "Date", msg.Date.Format(time.RFC1123Z))
	writeHeader(&out, "Message-ID", msg.MessageID)
	writeHeader(&out, "Content-Type", mime.FormatMediaType("multipart/alternative", map[string]string{"boundary": mw.Boundary()}))
	out.WriteString("\r\n")
	out.Write(body.Bytes())

	return out.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

func newMessageID(from string) string {
	domain := "localhost"
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		domain = from[i+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
