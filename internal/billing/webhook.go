// Package billing mirrors Stripe subscription state onto companies.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	companydomain "github.com/smallbiznis/plantops/internal/company/domain"
	"github.com/smallbiznis/plantops/internal/config"
	obscontext "github.com/smallbiznis/plantops/internal/observability/context"
	"github.com/smallbiznis/plantops/internal/observability/metrics"
	"github.com/smallbiznis/plantops/internal/seat"
	seatservice "github.com/smallbiznis/plantops/internal/seat/service"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	eventSubscriptionCreated = "customer.subscription.created"
	eventSubscriptionUpdated = "customer.subscription.updated"
	eventSubscriptionDeleted = "customer.subscription.deleted"
	eventCheckoutCompleted   = "checkout.session.completed"

	metadataCompanyID = "company_id"
)

var (
	ErrWebhookNotConfigured = errors.New("stripe_webhook_not_configured")
	ErrInvalidSignature     = errors.New("invalid_signature")
	ErrInvalidPayload       = errors.New("invalid_payload")
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Cfg       config.Config
	Companies companydomain.Service
	Seats     seatservice.Service
	Metrics   *metrics.Metrics `optional:"true"`
}

// Webhook verifies and applies Stripe events. Every handler sets fields to
// the values carried by the event, so replays are harmless.
type Webhook struct {
	log       *zap.Logger
	cfg       config.StripeConfig
	companies companydomain.Service
	seats     seatservice.Service
	metrics   *metrics.Metrics
}

func NewWebhook(p Params) *Webhook {
	return &Webhook{
		log:       p.Log.Named("billing.webhook"),
		cfg:       p.Cfg.Stripe,
		companies: p.Companies,
		seats:     p.Seats,
		metrics:   p.Metrics,
	}
}

// Handle verifies the Stripe-Signature header and dispatches the event.
// Unknown event types are acknowledged without effect.
func (w *Webhook) Handle(ctx context.Context, payload []byte, signature string) error {
	if w.cfg.WebhookSecret == "" {
		return ErrWebhookNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, w.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		w.log.Warn("stripe signature rejected", zap.Error(err))
		return ErrInvalidSignature
	}

	eventType := string(event.Type)
	w.metrics.RecordWebhookEvent(ctx, "stripe", eventType)
	ctx = obscontext.WithActor(ctx, "stripe", event.ID)

	switch eventType {
	case eventSubscriptionCreated, eventSubscriptionUpdated, eventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return w.applySubscription(ctx, &sub, eventType == eventSubscriptionDeleted)
	case eventCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return w.applyCheckout(ctx, &session)
	default:
		w.log.Debug("ignoring stripe event", zap.String("event_id", event.ID), zap.String("type", eventType))
		return nil
	}
}

func (w *Webhook) applySubscription(ctx context.Context, sub *stripe.Subscription, deleted bool) error {
	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	company, err := w.resolveCompany(ctx, sub.Metadata, customerID)
	if err != nil || company == nil {
		return err
	}

	status := string(sub.Status)
	if deleted && status == "" {
		status = string(stripe.SubscriptionStatusCanceled)
	}
	subscriptionID := sub.ID
	update := companydomain.SubscriptionUpdate{Status: status, StripeSubscriptionID: &subscriptionID}
	if customerID != "" {
		update.StripeCustomerID = &customerID
	}
	if _, err := w.companies.UpdateSubscription(ctx, company.ID, update); err != nil {
		return err
	}

	manager, tech, matched := w.seatQuantities(sub)
	if deleted {
		manager, tech, matched = 0, 0, true
	}
	if !matched {
		w.log.Info("subscription carries no seat prices",
			zap.String("company_id", company.ID.String()),
			zap.String("subscription_id", sub.ID),
		)
		return nil
	}
	if _, err := w.companies.UpdatePurchasedSeats(ctx, company.ID, manager, tech); err != nil {
		return err
	}
	w.warnOverLimit(ctx, company.ID)
	return nil
}

func (w *Webhook) applyCheckout(ctx context.Context, session *stripe.CheckoutSession) error {
	customerID := ""
	if session.Customer != nil {
		customerID = session.Customer.ID
	}
	metadata := session.Metadata
	if metadata[metadataCompanyID] == "" && session.ClientReferenceID != "" {
		metadata = map[string]string{metadataCompanyID: session.ClientReferenceID}
	}
	company, err := w.resolveCompany(ctx, metadata, customerID)
	if err != nil || company == nil {
		return err
	}

	var update companydomain.SubscriptionUpdate
	if customerID != "" {
		update.StripeCustomerID = &customerID
	}
	if session.Subscription != nil && session.Subscription.ID != "" {
		subscriptionID := session.Subscription.ID
		update.StripeSubscriptionID = &subscriptionID
	}
	if _, err := w.companies.UpdateSubscription(ctx, company.ID, update); err != nil {
		return err
	}
	_, err = w.companies.AdvanceOnboarding(ctx, company.ID, companydomain.StagePaymentComplete)
	return err
}

// resolveCompany prefers metadata.company_id and falls back to the stored
// Stripe customer id. A nil company means the event belongs to no tenant.
func (w *Webhook) resolveCompany(ctx context.Context, metadata map[string]string, customerID string) (*companydomain.Company, error) {
	if raw := strings.TrimSpace(metadata[metadataCompanyID]); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err == nil && id != 0 {
			company, err := w.companies.GetByID(ctx, id)
			if err == nil {
				return company, nil
			}
			if !errors.Is(err, companydomain.ErrCompanyNotFound) {
				return nil, err
			}
		}
	}
	if customerID != "" {
		company, err := w.companies.GetByStripeCustomerID(ctx, customerID)
		if err == nil {
			return company, nil
		}
		if !errors.Is(err, companydomain.ErrCompanyNotFound) {
			return nil, err
		}
	}
	w.log.Warn("stripe event matches no company",
		zap.String("customer_id", customerID),
		zap.String("metadata_company_id", metadata[metadataCompanyID]),
	)
	return nil, nil
}

func (w *Webhook) seatQuantities(sub *stripe.Subscription) (manager, tech int, matched bool) {
	if sub.Items == nil {
		return 0, 0, false
	}
	for _, item := range sub.Items.Data {
		if item == nil || item.Price == nil {
			continue
		}
		switch item.Price.ID {
		case "":
		case w.cfg.ManagerSeatPriceID:
			manager += int(item.Quantity)
			matched = true
		case w.cfg.TechSeatPriceID:
			tech += int(item.Quantity)
			matched = true
		}
	}
	return manager, tech, matched
}

// warnOverLimit logs companies whose usage now exceeds the purchased seats.
// Nobody is evicted; available seats simply clamp at zero.
func (w *Webhook) warnOverLimit(ctx context.Context, companyID snowflake.ID) {
	b, err := w.seats.Breakdown(ctx, companyID)
	if err != nil {
		w.log.Warn("seat breakdown after seat update failed", zap.String("company_id", companyID.String()), zap.Error(err))
		return
	}
	for _, class := range []seat.Class{seat.ClassManager, seat.ClassTech} {
		over := b.Used.Get(class) + b.Pending.Get(class) - b.Purchased.Get(class)
		if over > 0 {
			w.log.Warn("company over seat limit",
				zap.String("company_id", companyID.String()),
				zap.String("class", string(class)),
				zap.Int("purchased", b.Purchased.Get(class)),
				zap.Int("used", b.Used.Get(class)),
				zap.Int("pending", b.Pending.Get(class)),
				zap.Int("overage", over),
			)
		}
	}
}
