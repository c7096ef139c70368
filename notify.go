package main

import (
	"fmt"
	"log"

	"github.com/slack-go/slack"
)

// Notifier posts one-line run summaries to a Slack channel. Disabled (nil or
// empty channel) it is a no-op, so call sites never need to guard.
type Notifier struct {
	api       *slack.Client
	channelID string
}

func NewNotifier(cfg Config) *Notifier {
	if cfg.SlackBotToken == "" || cfg.SlackChannelID == "" {
		log.Println("Slack notifications disabled (slack_bot_token not set)")
		return &Notifier{}
	}
	return &Notifier{
		api:       slack.New(cfg.SlackBotToken),
		channelID: cfg.SlackChannelID,
	}
}

func (n *Notifier) OptimizationSucceeded(outcome OptimizationOutcome) {
	res := outcome.Result
	n.post(fmt.Sprintf(
		"Optimization complete: %.1f kWh saved (%.1f%%), %.1f kg CO2 reduced (%d trees), $%.2f saved, green score %d. Updates: %d applied, %d failed.",
		res.EnergySavedKWh, res.EnergySavedPercentage, res.CO2ReducedKg, res.TreesEquivalent,
		res.CostSavedUSD, res.GreenScore, outcome.UpdatesApplied, len(outcome.UpdatesFailed)))
}

func (n *Notifier) OptimizationFailed(err error) {
	n.post(fmt.Sprintf("Optimization run failed: %v", err))
}

func (n *Notifier) UploadCompleted(filename string, summary UploadSummary) {
	n.post(fmt.Sprintf("Upload processed: %s, %d records created, %.2f kWh total.",
		filename, summary.RecordsCreated, summary.TotalUsage))
}

func (n *Notifier) post(text string) {
	if n == nil || n.api == nil {
		return
	}
	if _, _, err := n.api.PostMessage(n.channelID, slack.MsgOptionText(text, false)); err != nil {
		log.Printf("slack notify error: %v", err)
	}
}
