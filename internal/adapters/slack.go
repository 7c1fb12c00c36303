package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slack-go/slack"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/taskstream/integration-service/internal/config"
	"github.com/taskstream/integration-service/internal/models"
)

var (
	// ErrInvalidSlackConfig indicates missing or malformed Slack settings.
	ErrInvalidSlackConfig = errors.New("invalid slack configuration")

	// ErrSlackNotInitialized indicates Send/Status was called before a
	// successful Initialize.
	ErrSlackNotInitialized = errors.New("slack adapter not initialized")
)

const (
	defaultSlackRateLimit = 5
	defaultSlackRateBurst = 10
)

// SlackMessage is the payload shape the Slack adapter sends. An empty
// Channel falls back to the configured default channel.
type SlackMessage struct {
	Channel string
	Text    string
}

// slackAPI is the subset of the Slack client the adapter uses. It exists so
// tests can substitute a stub for the real API.
type slackAPI interface {
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackAdapter implements models.Integration for Slack. Outbound calls pass
// through a token-bucket rate limiter and a circuit breaker so a degraded
// Slack API cannot absorb unbounded requests.
type SlackAdapter struct {
	client         slackAPI
	cfg            *config.SlackConfig
	timeout        time.Duration
	defaultChannel string
	initialized    bool

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	tracker statusTracker

	// newClient builds the Slack client; tests override it.
	newClient func(token string) slackAPI
}

var _ models.Integration = (*SlackAdapter)(nil)

// NewSlackAdapter creates an uninitialized Slack adapter.
func NewSlackAdapter() *SlackAdapter {
	return &SlackAdapter{
		newClient: func(token string) slackAPI {
			return slack.New(token)
		},
	}
}

// Initialize validates the Slack configuration, builds the client, and
// verifies the token with an auth test. The adapter stays unusable if any
// step fails.
func (a *SlackAdapter) Initialize(cfg interface{}) error {
	serviceCfg, ok := cfg.(*config.Config)
	if !ok || serviceCfg == nil {
		return fmt.Errorf("%w: expected *config.Config", ErrInvalidSlackConfig)
	}
	if serviceCfg.Slack == nil || serviceCfg.Slack.Token == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidSlackConfig)
	}

	a.cfg = serviceCfg.Slack
	a.timeout = serviceCfg.Timeout
	a.defaultChannel = serviceCfg.Slack.DefaultChannel
	a.client = a.newClient(serviceCfg.Slack.Token)

	limit := a.cfg.RateLimit
	if limit <= 0 {
		limit = defaultSlackRateLimit
	}
	burst := a.cfg.RateBurst
	if burst <= 0 {
		burst = defaultSlackRateBurst
	}
	a.limiter = rate.NewLimiter(rate.Limit(limit), burst)

	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "slack",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if _, err := a.client.AuthTestContext(ctx); err != nil {
		a.tracker.setConnected(false)
		return fmt.Errorf("%w: slack auth test: %v", models.ErrConnectionFailed, err)
	}

	a.tracker.setConnected(true)
	a.initialized = true
	return nil
}

// Send delivers the payload to Slack. Heartbeats become auth-test pings;
// anything else is coerced to a SlackMessage and posted.
func (a *SlackAdapter) Send(payload interface{}) error {
	if !a.initialized {
		return ErrSlackNotInitialized
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if err := a.limiter.Wait(ctx); err != nil {
		a.tracker.recordFailure()
		return fmt.Errorf("slack rate limit wait: %w", err)
	}

	var err error
	switch p := payload.(type) {
	case models.Heartbeat:
		_, err = a.breaker.Execute(func() (interface{}, error) {
			return a.client.AuthTestContext(ctx)
		})
	default:
		var msg SlackMessage
		msg, err = a.coerceMessage(p)
		if err == nil {
			_, err = a.breaker.Execute(func() (interface{}, error) {
				_, _, postErr := a.client.PostMessageContext(ctx, msg.Channel, slack.MsgOptionText(msg.Text, false))
				return nil, postErr
			})
		}
	}

	if err != nil {
		a.tracker.recordFailure()
		if errors.Is(err, gobreaker.ErrOpenState) {
			a.tracker.setConnected(false)
		}
		return fmt.Errorf("slack send: %w", err)
	}

	a.tracker.recordSuccess()
	return nil
}

// Status reports the adapter's health without touching the network.
func (a *SlackAdapter) Status() (models.IntegrationStatus, error) {
	if !a.initialized {
		return models.IntegrationStatus{Name: "Slack", Type: "chat"}, ErrSlackNotInitialized
	}

	metadata := map[string]interface{}{
		"defaultChannel": a.defaultChannel,
		"breakerState":   a.breaker.State().String(),
	}
	return a.tracker.snapshot("Slack", "chat", metadata), nil
}

func (a *SlackAdapter) coerceMessage(payload interface{}) (SlackMessage, error) {
	var msg SlackMessage

	switch p := payload.(type) {
	case SlackMessage:
		msg = p
	case string:
		msg = SlackMessage{Text: p}
	case map[string]interface{}:
		if text, ok := p["text"].(string); ok {
			msg.Text = text
		}
		if channel, ok := p["channel"].(string); ok {
			msg.Channel = channel
		}
	default:
		return msg, fmt.Errorf("%w: unsupported slack payload type %T", models.ErrInvalidPayload, payload)
	}

	if msg.Channel == "" {
		msg.Channel = a.defaultChannel
	}
	if msg.Text == "" {
		return msg, fmt.Errorf("%w: empty message text", models.ErrInvalidPayload)
	}
	if msg.Channel == "" {
		return msg, fmt.Errorf("%w: no channel and no default channel configured", models.ErrInvalidPayload)
	}
	return msg, nil
}
