// Package payments charges consultation fees through Stripe Checkout.
package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/knocktern/hospital-booking/services/hospital-service/internal/model"
	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

var (
	ErrNotConfigured = errors.New("payments are not configured")
	ErrAlreadyPaid   = errors.New("appointment is already paid")
	ErrNotPayable    = errors.New("appointment cannot be paid in its current state")
	ErrBadSignature  = errors.New("invalid webhook signature")
)

const metaAppointmentID = "appointment_id"

type Config struct {
	SecretKey        string
	WebhookSecret    string
	WebhookTolerance time.Duration
	Currency         string
	SuccessURL       string
	CancelURL        string
}

// SessionCreator is checkoutsession.Client.New; tests swap it.
type SessionCreator func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

type Stripe struct {
	cfg    Config
	create SessionCreator
}

func NewStripe(cfg Config) *Stripe {
	cfg.Currency = strings.ToLower(strings.TrimSpace(cfg.Currency))
	if cfg.Currency == "" {
		cfg.Currency = "inr"
	}
	if cfg.WebhookTolerance <= 0 {
		cfg.WebhookTolerance = webhook.DefaultTolerance
	}
	s := &Stripe{cfg: cfg}
	if strings.TrimSpace(cfg.SecretKey) != "" {
		client := checkoutsession.Client{B: stripe.GetBackend(stripe.APIBackend), Key: cfg.SecretKey}
		s.create = client.New
	}
	return s
}

func (s *Stripe) WithSessionCreator(fn SessionCreator) *Stripe {
	s.create = fn
	return s
}

type Session struct {
	ID  string `json:"session_id"`
	URL string `json:"url"`
}

// Checkout opens a one-off payment for the doctor's consultation fee.
func (s *Stripe) Checkout(appt model.Appointment, doctor model.Doctor, idempotencyKey string) (Session, error) {
	if s.create == nil {
		return Session{}, ErrNotConfigured
	}
	if appt.PaymentStatus == model.PaymentPaid {
		return Session{}, ErrAlreadyPaid
	}
	if appt.Status == model.StatusCancelled || appt.Status == model.StatusNoShow {
		return Session{}, ErrNotPayable
	}
	fee := doctor.ConsultationFee
	if fee <= 0 {
		fee = model.DefaultConsultationFee
	}

	id := strconv.FormatInt(appt.ID, 10)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		ClientReferenceID: stripe.String(id),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(s.cfg.Currency),
					UnitAmount: stripe.Int64(MinorUnits(fee)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("Consultation with %s on %s %s", doctor.Name, appt.Date, appt.Time)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{metaAppointmentID: id},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{metaAppointmentID: id},
		},
	}
	if appt.Email != "" {
		params.CustomerEmail = stripe.String(appt.Email)
	}
	if k := strings.TrimSpace(idempotencyKey); k != "" {
		params.IdempotencyKey = stripe.String(k)
	}

	sess, err := s.create(params)
	if err != nil {
		return Session{}, fmt.Errorf("create checkout session: %w", err)
	}
	return Session{ID: sess.ID, URL: sess.URL}, nil
}

// MinorUnits converts a fee to the smallest currency unit.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

type WebhookEvent struct {
	ID            string
	Type          string
	OccurredAt    time.Time
	AppointmentID int64
	// Paid is set for completed sessions whose payment has settled.
	Paid bool
}

// ParseWebhook verifies the signature and extracts the appointment a
// checkout event refers to. Other event types come back with a zero
// AppointmentID.
func (s *Stripe) ParseWebhook(body []byte, signature string) (WebhookEvent, error) {
	if strings.TrimSpace(s.cfg.WebhookSecret) == "" {
		return WebhookEvent{}, ErrNotConfigured
	}
	evt, err := webhook.ConstructEventWithTolerance(body, signature, s.cfg.WebhookSecret, s.cfg.WebhookTolerance)
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	out := WebhookEvent{ID: evt.ID, Type: string(evt.Type), OccurredAt: time.Unix(evt.Created, 0).UTC()}

	switch evt.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			return out, fmt.Errorf("decode checkout session: %w", err)
		}
		raw := strings.TrimSpace(session.Metadata[metaAppointmentID])
		if raw == "" {
			raw = strings.TrimSpace(session.ClientReferenceID)
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return out, fmt.Errorf("checkout session %s has no appointment reference", session.ID)
		}
		out.AppointmentID = id
		out.Paid = session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid
	}
	return out, nil
}
