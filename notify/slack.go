package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

// slackPoster is the part of the Slack Web API used here.
type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// =============================================================================
// SlackNotifier
// =============================================================================

// SlackNotifier posts Block Kit messages with a bot token.
type SlackNotifier struct {
	client  slackPoster
	channel string
}

// NewSlackNotifier creates a notifier that posts to channel as the bot.
func NewSlackNotifier(token, channel string, opts ...slack.Option) (*SlackNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("slack bot token is required")
	}
	if channel == "" {
		return nil, fmt.Errorf("slack channel is required")
	}
	return &SlackNotifier{client: slack.New(token, opts...), channel: channel}, nil
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, event Event) error {
	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(fallbackText(event), false),
		slack.MsgOptionBlocks(eventBlocks(event)...),
	)
	if err != nil {
		return fmt.Errorf("post slack message: %w", err)
	}
	return nil
}

// =============================================================================
// SlackWebhookNotifier
// =============================================================================

// SlackWebhookNotifier sends notifications to a Slack incoming webhook.
type SlackWebhookNotifier struct {
	WebhookURL string
	Channel    string
	Username   string
	Client     *http.Client
}

// NewSlackWebhookNotifier creates a Slack webhook notifier.
func NewSlackWebhookNotifier(webhookURL string, opts ...SlackOption) *SlackWebhookNotifier {
	n := &SlackWebhookNotifier{
		WebhookURL: webhookURL,
		Username:   "agentic-pipeline",
		Client:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SlackOption configures SlackWebhookNotifier.
type SlackOption func(*SlackWebhookNotifier)

// WithSlackChannel sets the channel to post to.
func WithSlackChannel(channel string) SlackOption {
	return func(n *SlackWebhookNotifier) { n.Channel = channel }
}

// WithSlackUsername sets the bot username.
func WithSlackUsername(username string) SlackOption {
	return func(n *SlackWebhookNotifier) { n.Username = username }
}

// Notify implements Notifier.
func (n *SlackWebhookNotifier) Notify(ctx context.Context, event Event) error {
	msg := &slack.WebhookMessage{
		Username: n.Username,
		Channel:  n.Channel,
		Text:     fallbackText(event),
		Blocks:   &slack.Blocks{BlockSet: eventBlocks(event)},
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.WebhookURL, n.Client, msg); err != nil {
		return fmt.Errorf("send slack webhook: %w", err)
	}
	return nil
}

// =============================================================================
// Block Kit rendering
// =============================================================================

// maxSectionText is Slack's limit for a section text object.
const maxSectionText = 3000

func eventBlocks(event Event) []slack.Block {
	title := event.Title
	if title == "" {
		title = string(event.Type)
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", title, true, false)),
	}

	if event.Message != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", truncate(event.Message, maxSectionText), false, false),
			nil, nil))
	}

	if len(event.Fields) > 0 {
		fields := make([]*slack.TextBlockObject, 0, len(event.Fields))
		for _, f := range event.Fields {
			fields = append(fields, slack.NewTextBlockObject("mrkdwn",
				fmt.Sprintf("*%s*\n%s", f.Title, f.Value), false, false))
		}
		// Slack allows at most ten fields per section.
		for len(fields) > 0 {
			n := min(len(fields), 10)
			blocks = append(blocks, slack.NewSectionBlock(nil, fields[:n], nil))
			fields = fields[n:]
		}
	}

	blocks = append(blocks,
		slack.NewDividerBlock(),
		slack.NewContextBlock("",
			slack.NewTextBlockObject("mrkdwn",
				fmt.Sprintf("%s %s | run `%s`", emojiForEvent(event), event.Type, event.RunID), false, false)),
	)
	return blocks
}

// fallbackText is shown in notifications and clients without Block Kit.
func fallbackText(event Event) string {
	if event.Title != "" {
		return event.Title
	}
	return fmt.Sprintf("%s: %s", event.Type, firstLine(event.Message))
}

func emojiForEvent(event Event) string {
	switch event.Type {
	case EventRunCompleted:
		if event.Severity == SeverityWarning {
			return ":warning:"
		}
		return ":white_check_mark:"
	case EventRunFailed:
		return ":x:"
	case EventApprovalNeeded:
		return ":raised_hand:"
	case EventLoopLimit:
		return ":repeat:"
	case EventTicketEscalated:
		return ":rotating_light:"
	case EventMerged:
		return ":twisted_rightwards_arrows:"
	default:
		return ":loudspeaker:"
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
