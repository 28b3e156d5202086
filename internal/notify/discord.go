package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Embed colors per event status.
const (
	colorGreen  = 0x2ECC71
	colorYellow = 0xF1C40F
	colorRed    = 0xE74C3C
	colorGrey   = 0x95A5A6
)

// Discord posts events as webhook embeds.
type Discord struct {
	webhookURL string
	logger     *zap.Logger
	httpClient *http.Client
}

// NewDiscord creates a Discord notifier for the given webhook URL.
func NewDiscord(webhookURL string, logger *zap.Logger) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		logger:     logger,
		httpClient: &http.Client{
			Timeout: 8 * time.Second,
		},
	}
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title  string         `json:"title"`
	Color  int            `json:"color"`
	Fields []discordField `json:"fields,omitempty"`
	Footer *discordFooter `json:"footer,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

// Notify posts the event. Failures are logged at warn and dropped.
func (d *Discord) Notify(ctx context.Context, ev Event) {
	embed := discordEmbed{
		Title: ev.Title,
		Color: statusColor(ev.Status),
	}
	for _, f := range ev.Fields {
		embed.Fields = append(embed.Fields, discordField{Name: f.Name, Value: f.Value, Inline: true})
	}
	if ev.OrderID != "" {
		embed.Footer = &discordFooter{Text: "order " + ev.OrderID}
	}

	body, err := json.Marshal(discordPayload{Embeds: []discordEmbed{embed}})
	if err != nil {
		d.logger.Warn("discord payload marshal failed", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		d.logger.Warn("discord request failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.Warn("discord notification failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		d.logger.Warn("discord webhook rejected notification",
			zap.Int("status", resp.StatusCode),
		)
	}
}

func statusColor(status string) int {
	switch status {
	case "ok":
		return colorGreen
	case "partial", "skipped":
		return colorYellow
	case "error", "rejected":
		return colorRed
	default:
		return colorGrey
	}
}
