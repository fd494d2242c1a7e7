// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package codes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/opentrusty/enterprise/internal/audit"
	"github.com/opentrusty/enterprise/internal/observability/logger"
)

// ErrSendFailed is returned when the request email could not be delivered
var ErrSendFailed = errors.New("request codes email could not be sent")

// Request is a customer admin's request for more coupon codes
type Request struct {
	Email          string `json:"email"`
	EnterpriseName string `json:"enterprise_name"`
	NumberOfCodes  string `json:"number_of_codes,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// MissingParamsError names the required parameters absent from a request
type MissingParamsError struct {
	Params []string
}

func (e *MissingParamsError) Error() string {
	return "Some required parameter(s) missing: " + strings.Join(e.Params, ", ")
}

// Validate reports missing required parameters
func (r Request) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(r.EnterpriseName) == "" {
		missing = append(missing, "enterprise_name")
	}
	if len(missing) > 0 {
		return &MissingParamsError{Params: missing}
	}
	return nil
}

// Service forwards coupon code requests to customer success
type Service struct {
	mailer          Mailer
	from            string
	customerSuccess string
	auditLogger     audit.Logger
}

// NewService creates a new codes service
func NewService(mailer Mailer, from, customerSuccess string, auditLogger audit.Logger) *Service {
	return &Service{
		mailer:          mailer,
		from:            from,
		customerSuccess: customerSuccess,
		auditLogger:     auditLogger,
	}
}

// RequestCodes validates req and mails it to customer success
func (s *Service) RequestCodes(ctx context.Context, actorID int64, req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	msg := Message{
		From:    s.from,
		To:      []string{s.customerSuccess},
		Subject: fmt.Sprintf("Code Management - Request for Codes by %s", req.EnterpriseName),
		Body:    messageBody(req),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "failure in sending e-mail to support",
			logger.Component("codes"),
			logger.Email(req.Email),
			logger.String("enterprise_name", req.EnterpriseName),
			logger.String("support_email", s.customerSuccess),
			logger.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	slog.InfoContext(ctx, "coupon code request email sent",
		logger.Component("codes"),
		logger.String("enterprise_name", req.EnterpriseName),
	)
	s.auditLogger.Log(ctx, audit.Event{
		Type:    audit.TypeCodesRequested,
		ActorID: strconv.FormatInt(actorID, 10),
		Metadata: map[string]any{
			"enterprise_name": req.EnterpriseName,
			"number_of_codes": req.NumberOfCodes,
		},
	})
	return nil
}

func messageBody(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Email: %s\n", req.Email)
	fmt.Fprintf(&b, "Enterprise Name: %s\n", req.EnterpriseName)
	if req.NumberOfCodes != "" {
		fmt.Fprintf(&b, "Number of Codes: %s\n", req.NumberOfCodes)
	}
	if req.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", req.Notes)
	}
	return b.String()
}
