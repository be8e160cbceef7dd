// Copyright 2026 The Digital Portal Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mail sends transactional email. The console backend logs the
// message instead of sending it and is the default outside production.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Message is a plain-text transactional email.
type Message struct {
	ToName    string
	ToAddress string
	Subject   string
	Body      string
}

// Mailer defines the interface for sending mail
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// ConsoleMailer logs messages instead of delivering them.
type ConsoleMailer struct {
	logger *slog.Logger
}

// NewConsoleMailer creates a mailer that writes to the log
func NewConsoleMailer(logger *slog.Logger) *ConsoleMailer {
	return &ConsoleMailer{logger: logger}
}

func (m *ConsoleMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("mail (console backend)",
		slog.String("to", msg.ToAddress),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendgridMailer delivers mail through the SendGrid v3 API.
type SendgridMailer struct {
	key  string
	from *sgmail.Email
}

// NewSendgridMailer creates a SendGrid-backed mailer
func NewSendgridMailer(key, fromName, fromAddress string) *SendgridMailer {
	return &SendgridMailer{
		key:  key,
		from: sgmail.NewEmail(fromName, fromAddress),
	}
}

func (m *SendgridMailer) Send(_ context.Context, msg Message) error {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.ToAddress))

	v3 := sgmail.NewV3Mail()
	v3.SetFrom(m.from)
	v3.AddPersonalizations(p)
	v3.AddContent(sgmail.NewContent("text/plain", msg.Body))

	req := sendgrid.GetRequest(m.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(v3)

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sendgrid request failed: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid rejected message: status %d", res.StatusCode)
	}
	return nil
}

// PasswordResetMessage builds the reset email pointing at the frontend
// reset page with the token as a query parameter.
func PasswordResetMessage(toName, toAddress, token, frontendBaseURL string) Message {
	link := fmt.Sprintf("%s/reset-password?token=%s", frontendBaseURL, url.QueryEscape(token))
	return Message{
		ToName:    toName,
		ToAddress: toAddress,
		Subject:   "Reset your portal password",
		Body: fmt.Sprintf(
			"Hello %s,\n\nA password reset was requested for your account. "+
				"Follow the link below to choose a new password:\n\n%s\n\n"+
				"If you did not request this, you can ignore this message.\n",
			toName, link,
		),
	}
}
