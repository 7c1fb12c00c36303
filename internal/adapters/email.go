package adapters

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/taskstream/integration-service/internal/config"
	"github.com/taskstream/integration-service/internal/models"
)

var (
	// ErrInvalidEmailConfig indicates missing or malformed SMTP settings.
	ErrInvalidEmailConfig = errors.New("invalid email configuration")

	// ErrEmailNotInitialized indicates Send/Status was called before a
	// successful Initialize.
	ErrEmailNotInitialized = errors.New("email adapter not initialized")

	// ErrRecipientNotAllowed indicates a recipient outside the configured
	// domain allow-list.
	ErrRecipientNotAllowed = errors.New("recipient domain not allowed")
)

const defaultContentType = "text/plain"

// EmailPayload is the payload shape the email adapter sends.
type EmailPayload struct {
	Subject     string
	Body        string
	To          []string
	ContentType string
}

// EmailAdapter implements models.Integration over SMTP. Connections are
// opened per send; Initialize and heartbeats verify reachability with a
// bounded exponential-backoff dial.
type EmailAdapter struct {
	cfg         *config.EmailConfig
	timeout     time.Duration
	initialized bool
	tracker     statusTracker

	// deliver and dial are override points for tests.
	deliver func(payload EmailPayload) error
	dial    func() error
}

var _ models.Integration = (*EmailAdapter)(nil)
var _ models.Closer = (*EmailAdapter)(nil)

// NewEmailAdapter creates an uninitialized email adapter.
func NewEmailAdapter() *EmailAdapter {
	a := &EmailAdapter{}
	a.deliver = a.smtpDeliver
	a.dial = a.smtpDialCheck
	return a
}

// Initialize validates the email configuration and verifies the SMTP
// endpoint is reachable.
func (a *EmailAdapter) Initialize(cfg interface{}) error {
	serviceCfg, ok := cfg.(*config.Config)
	if !ok || serviceCfg == nil {
		return fmt.Errorf("%w: expected *config.Config", ErrInvalidEmailConfig)
	}
	if serviceCfg.Email == nil || serviceCfg.Email.Host == "" || serviceCfg.Email.Port == 0 {
		return fmt.Errorf("%w: host and port are required", ErrInvalidEmailConfig)
	}
	if serviceCfg.Email.FromAddress == "" {
		return fmt.Errorf("%w: from_address is required", ErrInvalidEmailConfig)
	}

	a.cfg = serviceCfg.Email
	a.timeout = serviceCfg.Timeout

	if err := a.dialWithRetry(); err != nil {
		a.tracker.setConnected(false)
		return fmt.Errorf("%w: smtp dial: %v", models.ErrConnectionFailed, err)
	}

	a.tracker.setConnected(true)
	a.initialized = true
	return nil
}

// Send delivers an email. Heartbeats become reachability checks rather
// than outgoing mail.
func (a *EmailAdapter) Send(payload interface{}) error {
	if !a.initialized {
		return ErrEmailNotInitialized
	}

	var err error
	switch p := payload.(type) {
	case models.Heartbeat:
		err = a.dialWithRetry()
	default:
		var msg EmailPayload
		msg, err = a.coercePayload(p)
		if err == nil {
			err = a.deliver(msg)
		}
	}

	if err != nil {
		a.tracker.recordFailure()
		return fmt.Errorf("email send: %w", err)
	}

	a.tracker.recordSuccess()
	return nil
}

// Status reports the adapter's health without touching the network.
func (a *EmailAdapter) Status() (models.IntegrationStatus, error) {
	if !a.initialized {
		return models.IntegrationStatus{Name: "Email", Type: "email"}, ErrEmailNotInitialized
	}

	metadata := map[string]interface{}{
		"host":   a.cfg.Host,
		"port":   a.cfg.Port,
		"useTLS": a.cfg.UseTLS,
	}
	return a.tracker.snapshot("Email", "email", metadata), nil
}

// Close marks the adapter unusable. SMTP connections are per-send, so
// there is nothing else to release.
func (a *EmailAdapter) Close() error {
	a.initialized = false
	a.tracker.setConnected(false)
	return nil
}

func (a *EmailAdapter) coercePayload(payload interface{}) (EmailPayload, error) {
	var msg EmailPayload

	switch p := payload.(type) {
	case EmailPayload:
		msg = p
	case map[string]interface{}:
		if subject, ok := p["subject"].(string); ok {
			msg.Subject = subject
		}
		if body, ok := p["body"].(string); ok {
			msg.Body = body
		}
		switch to := p["to"].(type) {
		case []string:
			msg.To = to
		case []interface{}:
			for _, r := range to {
				if s, ok := r.(string); ok {
					msg.To = append(msg.To, s)
				}
			}
		}
	default:
		return msg, fmt.Errorf("%w: unsupported email payload type %T", models.ErrInvalidPayload, payload)
	}

	if len(msg.To) == 0 {
		return msg, fmt.Errorf("%w: no recipients", models.ErrInvalidPayload)
	}
	if msg.Subject == "" && msg.Body == "" {
		return msg, fmt.Errorf("%w: empty subject and body", models.ErrInvalidPayload)
	}
	if msg.ContentType == "" {
		msg.ContentType = defaultContentType
	}

	for _, rcpt := range msg.To {
		if err := a.checkRecipient(rcpt); err != nil {
			return msg, err
		}
	}
	return msg, nil
}

// checkRecipient enforces the outbound domain allow-list. An empty list
// allows everything.
func (a *EmailAdapter) checkRecipient(addr string) error {
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return fmt.Errorf("%w: malformed address %q", models.ErrInvalidPayload, addr)
	}
	if len(a.cfg.AllowedDomains) == 0 {
		return nil
	}

	domain := strings.ToLower(addr[at+1:])
	for _, allowed := range a.cfg.AllowedDomains {
		if strings.EqualFold(allowed, domain) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrRecipientNotAllowed, domain)
}

// dialWithRetry probes the SMTP endpoint, retrying transient failures with
// exponential backoff.
func (a *EmailAdapter) dialWithRetry() error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = a.timeout
	return backoff.Retry(a.dial, backoff.WithMaxRetries(bo, 2))
}

func (a *EmailAdapter) smtpDialCheck() error {
	conn, err := net.DialTimeout("tcp", a.addr(), a.timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

// smtpDeliver opens an SMTP session, authenticates when required, and
// sends the message. Port 465 uses implicit TLS; otherwise STARTTLS is
// negotiated when configured and offered.
func (a *EmailAdapter) smtpDeliver(payload EmailPayload) error {
	var (
		client *smtp.Client
		err    error
	)

	if a.cfg.UseTLS && a.cfg.Port == 465 {
		var conn *tls.Conn
		conn, err = tls.Dial("tcp", a.addr(), &tls.Config{ServerName: a.cfg.Host})
		if err != nil {
			return fmt.Errorf("tls dial: %w", err)
		}
		client, err = smtp.NewClient(conn, a.cfg.Host)
	} else {
		client, err = smtp.Dial(a.addr())
	}
	if err != nil {
		return fmt.Errorf("smtp connect: %w", err)
	}
	defer func() { _ = client.Close() }()

	if a.cfg.UseTLS && a.cfg.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: a.cfg.Host}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if a.cfg.RequireAuth {
		auth := smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(a.cfg.FromAddress); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range payload.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %q: %w", rcpt, err)
		}
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := wc.Write(a.composeMessage(payload)); err != nil {
		_ = wc.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}

	return client.Quit()
}

func (a *EmailAdapter) composeMessage(payload EmailPayload) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", a.cfg.FromAddress)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(payload.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", payload.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: %s; charset=\"UTF-8\"\r\n", payload.ContentType)
	b.WriteString("\r\n")
	b.WriteString(payload.Body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

func (a *EmailAdapter) addr() string {
	return fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)
}
