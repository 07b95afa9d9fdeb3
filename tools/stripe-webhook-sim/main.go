// Command stripe-webhook-sim posts a signed Checkout event to the hospital
// API so the payment flow can be exercised without a Stripe account.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knocktern/hospital-booking/libs/config"
	"github.com/spf13/cobra"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const webhookPath = "/api/v1/payments/webhook"

func main() {
	var (
		baseURL       string
		eventType     string
		appointmentID int64
		secret        string
		unpaid        bool
	)
	cmd := &cobra.Command{
		Use:          "stripe-webhook-sim",
		Short:        "Send a signed checkout.session event for an appointment",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = config.String("STRIPE_WEBHOOK_SECRET", "")
			}
			if strings.TrimSpace(secret) == "" {
				return errors.New("STRIPE_WEBHOOK_SECRET is required")
			}
			if appointmentID <= 0 {
				return errors.New("--appointment-id is required")
			}

			now := time.Now().UTC()
			payload, err := buildEvent(fmt.Sprintf("evt_sim_%d", now.UnixNano()), eventType, now, appointmentID, !unpaid)
			if err != nil {
				return err
			}
			signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
				Payload:   payload,
				Secret:    secret,
				Timestamp: now,
				Scheme:    "v1",
			})

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, strings.TrimRight(baseURL, "/")+webhookPath, bytes.NewReader(payload))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Stripe-Signature", signed.Header)

			resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			fmt.Fprintf(cmd.OutOrStdout(), "status=%d %s\n", resp.StatusCode, strings.TrimSpace(string(body)))
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", config.String("BASE_URL", "http://localhost:8080"), "hospital-service base url")
	cmd.Flags().StringVar(&eventType, "type", "checkout.session.completed", "checkout.session.completed or checkout.session.async_payment_succeeded")
	cmd.Flags().Int64Var(&appointmentID, "appointment-id", 0, "appointment the checkout paid for")
	cmd.Flags().StringVar(&secret, "secret", "", "webhook signing secret (defaults to STRIPE_WEBHOOK_SECRET)")
	cmd.Flags().BoolVar(&unpaid, "unpaid", false, "report payment_status=unpaid")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func buildEvent(eventID, eventType string, t time.Time, appointmentID int64, paid bool) ([]byte, error) {
	switch eventType {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	status := stripe.CheckoutSessionPaymentStatusPaid
	if !paid {
		status = stripe.CheckoutSessionPaymentStatusUnpaid
	}
	ref := strconv.FormatInt(appointmentID, 10)
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data": map[string]any{
			"object": map[string]any{
				"id":                  "cs_sim_" + ref,
				"object":              "checkout.session",
				"mode":                "payment",
				"payment_status":      status,
				"client_reference_id": ref,
				"metadata":            map[string]string{"appointment_id": ref},
			},
		},
	})
}
