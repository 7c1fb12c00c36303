package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	jira "github.com/andygrunwald/go-jira"
	"golang.org/x/time/rate"

	"github.com/taskstream/integration-service/internal/config"
	"github.com/taskstream/integration-service/internal/models"
)

var (
	// ErrInvalidJiraConfig indicates missing or malformed Jira settings.
	ErrInvalidJiraConfig = errors.New("invalid jira configuration")

	// ErrJiraNotInitialized indicates Send/Status was called before a
	// successful Initialize.
	ErrJiraNotInitialized = errors.New("jira adapter not initialized")
)

const (
	defaultIssueType     = "Task"
	defaultPriority      = "Medium"
	defaultJiraRate      = 10
	defaultJiraRateBurst = 10
)

// JiraIssuePayload is the payload shape the Jira adapter turns into an
// issue. Empty fields fall back to adapter defaults.
type JiraIssuePayload struct {
	Summary     string
	Description string
	IssueType   string
	Priority    string
	ProjectKey  string
}

// jiraAPI is the subset of the Jira client the adapter uses; tests
// substitute a stub.
type jiraAPI interface {
	CreateIssue(issue *jira.Issue) (*jira.Issue, error)
	CurrentUser() error
}

// jiraClient adapts *jira.Client to jiraAPI.
type jiraClient struct {
	client *jira.Client
}

func (c *jiraClient) CreateIssue(issue *jira.Issue) (*jira.Issue, error) {
	created, _, err := c.client.Issue.Create(issue)
	return created, err
}

func (c *jiraClient) CurrentUser() error {
	_, _, err := c.client.User.GetSelf()
	return err
}

// JiraAdapter implements models.Integration for Jira issue creation.
type JiraAdapter struct {
	client      jiraAPI
	cfg         *config.JiraConfig
	timeout     time.Duration
	initialized bool

	limiter *rate.Limiter
	tracker statusTracker

	// newClient builds the Jira client; tests override it.
	newClient func(cfg *config.JiraConfig) (jiraAPI, error)
}

var _ models.Integration = (*JiraAdapter)(nil)

// NewJiraAdapter creates an uninitialized Jira adapter.
func NewJiraAdapter() *JiraAdapter {
	return &JiraAdapter{
		newClient: func(cfg *config.JiraConfig) (jiraAPI, error) {
			tp := jira.BasicAuthTransport{
				Username: cfg.Username,
				Password: cfg.APIToken,
			}
			client, err := jira.NewClient(tp.Client(), cfg.URL)
			if err != nil {
				return nil, err
			}
			return &jiraClient{client: client}, nil
		},
	}
}

// Initialize validates the Jira configuration, builds the client, and
// verifies credentials by fetching the authenticated user.
func (a *JiraAdapter) Initialize(cfg interface{}) error {
	serviceCfg, ok := cfg.(*config.Config)
	if !ok || serviceCfg == nil {
		return fmt.Errorf("%w: expected *config.Config", ErrInvalidJiraConfig)
	}
	if serviceCfg.Jira == nil || serviceCfg.Jira.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidJiraConfig)
	}
	if serviceCfg.Jira.Username == "" || serviceCfg.Jira.APIToken == "" {
		return fmt.Errorf("%w: username and api_token are required", ErrInvalidJiraConfig)
	}

	a.cfg = serviceCfg.Jira
	a.timeout = serviceCfg.Timeout

	client, err := a.newClient(a.cfg)
	if err != nil {
		return fmt.Errorf("%w: building client: %v", ErrInvalidJiraConfig, err)
	}
	a.client = client

	limit := a.cfg.RateLimit
	if limit <= 0 {
		limit = defaultJiraRate
	}
	a.limiter = rate.NewLimiter(rate.Limit(limit), defaultJiraRateBurst)

	if err := a.client.CurrentUser(); err != nil {
		a.tracker.setConnected(false)
		return fmt.Errorf("%w: jira auth check: %v", models.ErrConnectionFailed, err)
	}

	a.tracker.setConnected(true)
	a.initialized = true
	return nil
}

// Send creates a Jira issue from the payload. Heartbeats become
// credential checks.
func (a *JiraAdapter) Send(payload interface{}) error {
	if !a.initialized {
		return ErrJiraNotInitialized
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.limiter.Wait(ctx); err != nil {
		a.tracker.recordFailure()
		return fmt.Errorf("jira rate limit wait: %w", err)
	}

	var err error
	switch p := payload.(type) {
	case models.Heartbeat:
		err = a.client.CurrentUser()
	default:
		var issue *jira.Issue
		issue, err = a.buildIssue(p)
		if err == nil {
			_, err = a.client.CreateIssue(issue)
		}
	}

	if err != nil {
		a.tracker.recordFailure()
		return fmt.Errorf("jira send: %w", err)
	}

	a.tracker.recordSuccess()
	return nil
}

// Status reports the adapter's health without touching the network.
func (a *JiraAdapter) Status() (models.IntegrationStatus, error) {
	if !a.initialized {
		return models.IntegrationStatus{Name: "Jira", Type: "project_management"}, ErrJiraNotInitialized
	}

	metadata := map[string]interface{}{
		"url":        a.cfg.URL,
		"projectKey": a.cfg.ProjectKey,
	}
	return a.tracker.snapshot("Jira", "project_management", metadata), nil
}

func (a *JiraAdapter) buildIssue(payload interface{}) (*jira.Issue, error) {
	var p JiraIssuePayload

	switch v := payload.(type) {
	case JiraIssuePayload:
		p = v
	case string:
		p = JiraIssuePayload{Summary: v}
	case map[string]interface{}:
		if s, ok := v["summary"].(string); ok {
			p.Summary = s
		}
		if d, ok := v["description"].(string); ok {
			p.Description = d
		}
		if t, ok := v["issueType"].(string); ok {
			p.IssueType = t
		}
		if pr, ok := v["priority"].(string); ok {
			p.Priority = pr
		}
		if k, ok := v["projectKey"].(string); ok {
			p.ProjectKey = k
		}
	default:
		return nil, fmt.Errorf("%w: unsupported jira payload type %T", models.ErrInvalidPayload, payload)
	}

	if p.Summary == "" {
		return nil, fmt.Errorf("%w: issue summary is required", models.ErrInvalidPayload)
	}
	if p.IssueType == "" {
		p.IssueType = defaultIssueType
	}
	if p.Priority == "" {
		p.Priority = defaultPriority
	}
	if p.ProjectKey == "" {
		p.ProjectKey = a.cfg.ProjectKey
	}
	if p.ProjectKey == "" {
		return nil, fmt.Errorf("%w: no project key and no default configured", models.ErrInvalidPayload)
	}

	return &jira.Issue{
		Fields: &jira.IssueFields{
			Project:     jira.Project{Key: p.ProjectKey},
			Summary:     p.Summary,
			Description: p.Description,
			Type:        jira.IssueType{Name: p.IssueType},
			Priority:    &jira.Priority{Name: p.Priority},
		},
	}, nil
}
