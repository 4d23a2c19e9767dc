// Package notify tells people how a run went.
//
// A Notifier takes an Event (type, run, title, message and ordered
// fields). Deliveries go to Slack through a bot token or an incoming
// webhook, to any HTTP endpoint as JSON, or to the structured log.
// MultiNotifier fans one event out to several channels.
//
//	n := notify.NewSlackWebhookNotifier(webhookURL, notify.WithSlackChannel("#dev-pipeline"))
//	err := n.Notify(ctx, notify.Event{Type: notify.EventRunCompleted, Title: "Run a1b2c3d4 finished"})
package notify
