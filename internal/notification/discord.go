// Package notification forwards terminal events from the orchestrator
// to a Discord channel. Only completion, error and approval events are
// forwarded; streamed output chunks never leave the host.
package notification

import (
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/discordgo"

	"sentra/pkg/events"
)

// Embed accent colors keyed by severity.
var severityColors = map[string]int{
	"critical": 0x8B0000,
	"high":     0xFF0000,
	"medium":   0xFF8C00,
	"low":      0xFFD700,
	"info":     0x00BFFF,
}

const defaultColor = 0x808080

// NotificationClient holds an open Discord session and the channel the
// orchestrator posts to.
type NotificationClient struct {
	session   *discordgo.Session
	channelID string
}

// NewNotificationClient opens a bot session from DISCORD_TOKEN and
// DISCORD_CHANNEL_ID.
func NewNotificationClient() (*NotificationClient, error) {
	token := os.Getenv("DISCORD_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN environment variable not set")
	}
	channelID := os.Getenv("DISCORD_CHANNEL_ID")
	if channelID == "" {
		return nil, fmt.Errorf("DISCORD_CHANNEL_ID environment variable not set")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	if err := session.Open(); err != nil {
		return nil, err
	}

	return &NotificationClient{session: session, channelID: channelID}, nil
}

// HandleEvent forwards one event from the orchestrator stream. Event
// types without a notification shape are ignored.
func (c *NotificationClient) HandleEvent(event events.Event) {
	switch event.Type {
	case events.TypeToolCompleted:
		payload := event.ToolCompleted
		severity := "info"
		if payload.Status != "success" {
			severity = "medium"
		}
		c.post(severity, event.Timestamp, "Tool run completed",
			fmt.Sprintf("execution %s finished with status %s", payload.ExecutionID, payload.Status),
			field("entities", fmt.Sprintf("%d", payload.EntitiesCreated)),
			field("duration", fmt.Sprintf("%dms", payload.DurationMs)),
		)

	case events.TypeApprovalRequired:
		payload := event.ApprovalRequired
		c.post("high", event.Timestamp, "Approval required", payload.Reason,
			field("intent", payload.IntentKind),
			field("target", payload.Target),
			field("risk", payload.Risk),
		)

	case events.TypeToolError:
		payload := event.ToolError
		c.post("high", event.Timestamp, "Tool run failed", payload.Message,
			field("kind", payload.Kind),
		)
	}
}

// post builds and sends one embed; delivery failures are swallowed so a
// broken webhook never disturbs an invocation.
func (c *NotificationClient) post(severity string, at time.Time, title, description string,
	fields ...*discordgo.MessageEmbedField) {

	if c.session == nil {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}

	color, ok := severityColors[severity]
	if !ok {
		color = defaultColor
	}

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   at.Format(time.RFC3339),
		Fields:      fields,
	}
	_, _ = c.session.ChannelMessageSendEmbed(c.channelID, embed)
}

func field(name, value string) *discordgo.MessageEmbedField {
	return &discordgo.MessageEmbedField{Name: name, Value: value, Inline: true}
}

// Close shuts down the Discord session.
func (c *NotificationClient) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}
