// Package publish exports generated setup instructions to external trackers.
package publish

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/github"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/surajsub/deployassist/db"
	"golang.org/x/oauth2"
)

// ConfigurationLoader is satisfied by *db.Store.
type ConfigurationLoader interface {
	GetConfiguration(ctx context.Context, id uuid.UUID) (*db.Configuration, error)
}

// GitHubPublisher keeps one issue per configuration whose body is the
// current instruction list. Regenerating instructions edits that issue.
type GitHubPublisher struct {
	client  *github.Client
	configs ConfigurationLoader
	owner   string
	repo    string
	labels  []string
	logger  *logrus.Logger
}

type GitHubOptions struct {
	Token  string
	Owner  string
	Repo   string
	Labels []string
	// BaseURL overrides the API endpoint, for GitHub Enterprise.
	BaseURL string
}

// NewGitHubClient returns a client authenticating with a static token.
func NewGitHubClient(ctx context.Context, token, baseURL string) (*github.Client, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is empty")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}
		client.BaseURL = u
	}
	return client, nil
}

func NewGitHubPublisher(ctx context.Context, opts GitHubOptions, configs ConfigurationLoader, logger *logrus.Logger) (*GitHubPublisher, error) {
	client, err := NewGitHubClient(ctx, opts.Token, opts.BaseURL)
	if err != nil {
		return nil, err
	}
	return &GitHubPublisher{
		client:  client,
		configs: configs,
		owner:   opts.Owner,
		repo:    opts.Repo,
		labels:  opts.Labels,
		logger:  logger,
	}, nil
}

func marker(configID uuid.UUID) string {
	return fmt.Sprintf("<!-- deployassist:configuration:%s -->", configID)
}

// Publish creates or updates the configuration's issue.
func (p *GitHubPublisher) Publish(ctx context.Context, configID uuid.UUID, out []db.Instruction) error {
	cfg, err := p.configs.GetConfiguration(ctx, configID)
	if err != nil {
		return err
	}
	app := ""
	if cfg.DeploymentSetup != nil {
		app = cfg.DeploymentSetup.AppName
	}
	title := fmt.Sprintf("Setup instructions: %s (%s)", cfg.IntegrationType, app)
	body := IssueBody(configID, out)

	existing, err := p.find(ctx, configID)
	if err != nil {
		return err
	}

	req := &github.IssueRequest{Title: github.String(title), Body: github.String(body)}
	if len(p.labels) > 0 {
		labels := append([]string(nil), p.labels...)
		req.Labels = &labels
	}

	logger := p.logger.WithFields(logrus.Fields{"configuration_id": configID, "repository": p.owner + "/" + p.repo})
	if existing != nil {
		issue, _, err := p.client.Issues.Edit(ctx, p.owner, p.repo, existing.GetNumber(), req)
		if err != nil {
			return fmt.Errorf("update github issue #%d: %w", existing.GetNumber(), err)
		}
		logger.Infof("Updated GitHub issue %s", issue.GetHTMLURL())
		return nil
	}

	issue, _, err := p.client.Issues.Create(ctx, p.owner, p.repo, req)
	if err != nil {
		return fmt.Errorf("create github issue: %w", err)
	}
	logger.Infof("Created GitHub issue %s", issue.GetHTMLURL())
	return nil
}

func (p *GitHubPublisher) find(ctx context.Context, configID uuid.UUID) (*github.Issue, error) {
	m := marker(configID)
	opts := &github.IssueListByRepoOptions{
		State:       "all",
		Labels:      p.labels,
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		issues, resp, err := p.client.Issues.ListByRepo(ctx, p.owner, p.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list github issues: %w", err)
		}
		for _, issue := range issues {
			if strings.Contains(issue.GetBody(), m) {
				return issue, nil
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return nil, nil
		}
		opts.Page = resp.NextPage
	}
}

// IssueBody renders instructions as a markdown checklist followed by each
// step's full text.
func IssueBody(configID uuid.UUID, out []db.Instruction) string {
	var b strings.Builder
	b.WriteString(marker(configID))
	b.WriteString("\n\n")
	for _, in := range out {
		box := " "
		if in.Completed {
			box = "x"
		}
		fmt.Fprintf(&b, "- [%s] Step %d: %s\n", box, in.StepNumber, in.Title)
	}
	for _, in := range out {
		fmt.Fprintf(&b, "\n---\n\n### Step %d: %s\n\n%s", in.StepNumber, in.Title, in.InstructionText)
	}
	return b.String()
}
