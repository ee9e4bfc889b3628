package notify

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/containrrr/shoutrrr"
	"github.com/containrrr/shoutrrr/pkg/router"
	"github.com/containrrr/shoutrrr/pkg/types"

	"github.com/thebronway/domain-manager/internal/config"
	"github.com/thebronway/domain-manager/pkg/logger"
)

// Transport delivers one message over one channel.
type Transport interface {
	Name() string
	Send(subject, body string) error
}

// Recorder keeps a history of delivered notifications. It is optional;
// a nil recorder disables history.
type Recorder interface {
	Record(kind, domain, subject, detail string)
}

// Fanout delivers every message through all enabled channels. A send is
// considered successful when at least one channel accepts it.
type Fanout struct {
	enabled    bool
	transports []Transport
	recorder   Recorder
	log        *logger.Logger
}

// NewFanout builds the fanout from the notification configuration.
// Channels that fail to initialize are skipped with a logged error so
// one bad webhook URL never silences the rest.
func NewFanout(cfg config.Notifications) *Fanout {
	f := &Fanout{log: logger.GetLogger()}

	if !cfg.Enabled {
		f.log.Info("Notifications are globally disabled")
		return f
	}

	if cfg.SMTP.Enabled {
		f.addChannel("smtp", smtpURL(cfg.SMTP))
	}

	channels := []struct {
		name string
		ch   config.ChannelConfig
	}{
		{"discord", cfg.Discord},
		{"slack", cfg.Slack},
		{"telegram", cfg.Telegram},
		{"msteams", cfg.MSTeams},
		{"pushover", cfg.Pushover},
		{"gchat", cfg.GChat},
	}
	for _, c := range channels {
		if c.ch.Enabled {
			f.addChannel(c.name, c.ch.URL)
		}
	}

	if len(f.transports) == 0 {
		f.log.Warn("Notifications enabled but no channel is configured")
		return f
	}

	f.enabled = true
	names := make([]string, 0, len(f.transports))
	for _, t := range f.transports {
		names = append(names, t.Name())
	}
	f.log.Info("Notification channels configured", "channels", strings.Join(names, ", "))
	return f
}

// SetRecorder attaches the event history sink.
func (f *Fanout) SetRecorder(r Recorder) {
	f.recorder = r
}

// Enabled reports whether at least one channel is live.
func (f *Fanout) Enabled() bool {
	return f.enabled
}

// Send fans the message out to every channel. Delivery failures are
// logged; they never propagate to the caller.
func (f *Fanout) Send(subject, body string) {
	_ = f.send(subject, body)
}

// SendTest delivers a test message and reports whether any channel
// accepted it.
func (f *Fanout) SendTest() error {
	if !f.enabled {
		return fmt.Errorf("notifications are disabled or no channel is configured")
	}
	return f.send("Test Notification", "This is a test notification. If you can read this, the channel works.")
}

func (f *Fanout) send(subject, body string) error {
	if !f.enabled {
		f.log.Debug("Notification suppressed, no channels enabled", "subject", subject)
		return nil
	}

	delivered := 0
	for _, t := range f.transports {
		if err := t.Send(subject, body); err != nil {
			f.log.Error("Notification delivery failed", "channel", t.Name(), "subject", subject, "error", err)
			continue
		}
		f.log.Info("Notification sent", "channel", t.Name(), "subject", subject)
		delivered++
	}

	if delivered == 0 {
		return fmt.Errorf("all %d notification channels failed for %q", len(f.transports), subject)
	}
	if f.recorder != nil {
		f.recorder.Record("notification", "", subject, body)
	}
	return nil
}

func (f *Fanout) addChannel(name, serviceURL string) {
	t, err := newShoutrrrTransport(name, serviceURL)
	if err != nil {
		f.log.Error("Failed to configure notification channel", "channel", name, "error", err)
		return
	}
	f.transports = append(f.transports, t)
}

// smtpURL converts the structured SMTP settings into a shoutrrr service
// URL.
func smtpURL(c config.SMTPConfig) string {
	u := url.URL{
		Scheme: "smtp",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/",
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Pass)
	}

	q := url.Values{}
	q.Set("from", c.FromEmail)
	q.Set("to", c.ToEmail)
	u.RawQuery = q.Encode()
	return u.String()
}

type shoutrrrTransport struct {
	name   string
	sender *router.ServiceRouter
}

func newShoutrrrTransport(name, serviceURL string) (*shoutrrrTransport, error) {
	if strings.TrimSpace(serviceURL) == "" {
		return nil, fmt.Errorf("channel %s has no URL", name)
	}
	sender, err := shoutrrr.CreateSender(serviceURL)
	if err != nil {
		return nil, fmt.Errorf("create %s sender: %w", name, err)
	}
	return &shoutrrrTransport{name: name, sender: sender}, nil
}

func (t *shoutrrrTransport) Name() string { return t.name }

func (t *shoutrrrTransport) Send(subject, body string) error {
	params := types.Params{"title": subject}
	for _, err := range t.sender.Send(body, &params) {
		if err != nil {
			return err
		}
	}
	return nil
}
