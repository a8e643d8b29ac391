// Package email implements an SMTP-based email notifier
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/cta/internal/notifier"
	"github.com/newthinker/cta/internal/strategy"
)

// Email implements the Notifier interface for SMTP email
type Email struct {
	name     string
	host     string
	port     int
	username string
	password string
	from     string
	to       []string

	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New creates a new Email notifier
func New(host string, port int, username, password, from string, to []string) *Email {
	return &Email{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		sendMail: smtp.SendMail,
	}
}

func (e *Email) Name() string {
	if e.name != "" {
		return e.name
	}
	return "email"
}

func (e *Email) Init(cfg notifier.Config) error {
	if name, ok := cfg.Params["name"].(string); ok {
		e.name = name
	}
	if host, ok := cfg.Params["host"].(string); ok {
		e.host = host
	}
	switch port := cfg.Params["port"].(type) {
	case int:
		e.port = port
	case string:
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("email: invalid port %q", port)
		}
		e.port = p
	}
	if username, ok := cfg.Params["username"].(string); ok {
		e.username = username
	}
	if password, ok := cfg.Params["password"].(string); ok {
		e.password = password
	}
	if from, ok := cfg.Params["from"].(string); ok {
		e.from = from
	}
	switch to := cfg.Params["to"].(type) {
	case []string:
		e.to = to
	case []any:
		e.to = make([]string, 0, len(to))
		for _, addr := range to {
			e.to = append(e.to, fmt.Sprint(addr))
		}
	case string:
		e.to = strings.Split(to, ",")
	}

	if e.host == "" || e.from == "" || len(e.to) == 0 {
		return fmt.Errorf("email: host, from, and to are required")
	}
	if e.port == 0 {
		e.port = 587
	}
	if e.sendMail == nil {
		e.sendMail = smtp.SendMail
	}
	return nil
}

// Send mails one event. SMTP has no context support, so ctx is only checked
// before dialing.
func (e *Email) Send(ctx context.Context, ev strategy.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := fmt.Sprintf("CTA %s %s: position %d", ev.Name, ev.Symbol, ev.Pos)
	return e.sendEmail(subject, formatEvent(ev))
}

func formatEvent(ev strategy.Event) string {
	var sb strings.Builder
	sb.WriteString("CTA Strategy Update\n\n")
	sb.WriteString(fmt.Sprintf("Strategy: %s (%s)\n", ev.Name, ev.Class))
	sb.WriteString(fmt.Sprintf("Symbol: %s\n", ev.Symbol))
	sb.WriteString(fmt.Sprintf("Trading: %t\n", ev.Trading))
	sb.WriteString(fmt.Sprintf("Position: %d\n", ev.Pos))

	names := make([]string, 0, len(ev.Variables))
	for name := range ev.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("%s: %v\n", name, ev.Variables[name]))
	}

	sb.WriteString(fmt.Sprintf("Time: %s\n", ev.Time.Format(time.DateTime)))
	return sb.String()
}

func (e *Email) sendEmail(subject, body string) error {
	addr := fmt.Sprintf("%s:%d", e.host, e.port)

	var auth smtp.Auth
	if e.username != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.host)
	}

	msg := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n"+
		"\r\n"+
		"%s",
		e.from,
		strings.Join(e.to, ","),
		subject,
		body,
	)

	if err := e.sendMail(addr, auth, e.from, e.to, []byte(msg)); err != nil {
		return fmt.Errorf("email: %w", err)
	}
	return nil
}
