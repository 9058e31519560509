// Package notify sends user-facing notifications. Delivery transport is
// pluggable behind the Notifier interface; the invite email body and its
// signup link are rendered here so every transport sends the same thing.
package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"text/template"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sedum/pkg/audit"
)

// Invite asks a new user to join an organization.
type Invite struct {
	Email     string
	FirstName string
	OrgID     string
	OrgName   string
	InviterID string
	UserID    string
	Token     string
}

// Notifier delivers notifications.
type Notifier interface {
	SendInvite(ctx context.Context, invite Invite) error
}

// SignupURL builds the link an invited user follows to set a password.
// The user id is base64 encoded so the path segment is opaque.
func SignupURL(baseURL string, invite Invite) string {
	uid := base64.RawURLEncoding.EncodeToString([]byte(invite.UserID))
	return fmt.Sprintf("%s/signup/%s/%s", strings.TrimRight(baseURL, "/"), uid, url.PathEscape(invite.Token))
}

var inviteTemplate = template.Must(template.New("invite").Parse(
	`Hello{{if .FirstName}} {{.FirstName}}{{end}},

You have been invited to join {{.OrgName}}.

Create your account here: {{.SignupURL}}

If you weren't expecting this invitation you can ignore this email.
`))

type inviteData struct {
	FirstName string
	OrgName   string
	SignupURL string
}

// RenderInvite produces the subject and body of an invite email.
func RenderInvite(baseURL string, invite Invite) (string, string, error) {
	var body strings.Builder
	err := inviteTemplate.Execute(&body, inviteData{
		FirstName: invite.FirstName,
		OrgName:   invite.OrgName,
		SignupURL: SignupURL(baseURL, invite),
	})
	if err != nil {
		return "", "", err
	}
	subject := fmt.Sprintf("You've been invited to %s", invite.OrgName)
	return subject, body.String(), nil
}

// LogNotifier renders invites and logs them instead of sending email.
// Used in environments without an outbound mail relay.
type LogNotifier struct {
	log     ectologger.Logger
	auditor audit.Sink
	baseURL string
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log ectologger.Logger, auditor audit.Sink, baseURL string) *LogNotifier {
	return &LogNotifier{log: log, auditor: auditor, baseURL: baseURL}
}

func (n *LogNotifier) SendInvite(ctx context.Context, invite Invite) error {
	subject, body, err := RenderInvite(n.baseURL, invite)
	if err != nil {
		n.log.WithContext(ctx).WithError(err).Error("Failed to render invite")
		return err
	}
	n.log.WithContext(ctx).WithFields(map[string]any{
		"email":   invite.Email,
		"org_id":  invite.OrgID,
		"subject": subject,
	}).Info("Invite rendered")
	n.log.WithContext(ctx).WithField("body", body).Debug("Invite body")
	n.auditor.Record(ctx, audit.Entry{
		OrgID:   invite.OrgID,
		ActorID: invite.InviterID,
		Subject: invite.Email,
		Action:  audit.ActionUserInvited,
	})
	return nil
}
