package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"tenantgate/internal/common/errors"
	"tenantgate/internal/common/logging"
)

// Event is one verified inbound webhook delivery.
type Event struct {
	Provider string
	ID       string
	Type     string
	Payload  []byte
}

// Handler processes one verified event. A returned error means the event was
// not processed and the sender should retry; it is never recorded in the
// ledger.
type Handler func(ctx context.Context, event Event) error

// Outcome of an admitted webhook request.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
)

// Result reports what the gateway did with a delivery.
type Result struct {
	Outcome string
	Event   Event
}

// Gateway is the webhook admission pipeline: verify the signature over the
// raw bytes, deduplicate on (provider, event id), dispatch to a type-keyed
// handler, and record the ledger entry only after the handler succeeds.
type Gateway struct {
	verifier *Verifier
	ledger   Ledger
	logger   logging.Logger

	mu       sync.RWMutex
	handlers map[string]Handler

	locks *keyedMutex
}

// NewGateway creates a gateway with no handlers registered.
func NewGateway(verifier *Verifier, ledger Ledger, logger logging.Logger) *Gateway {
	return &Gateway{
		verifier: verifier,
		ledger:   ledger,
		logger:   logger,
		handlers: make(map[string]Handler),
		locks:    newKeyedMutex(),
	}
}

// Register installs the handler for one provider and event type. Events whose
// type has no handler are accepted and recorded without dispatch; unknown
// types from a provider are routine, not errors.
func (g *Gateway) Register(provider, eventType string, handler Handler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers[provider+"\x00"+eventType] = handler
}

func (g *Gateway) handler(provider, eventType string) (Handler, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	h, ok := g.handlers[provider+"\x00"+eventType]
	return h, ok
}

// Admit runs one delivery through the pipeline. The raw body is captured
// before any parsing so the signature is computed over the exact bytes the
// sender signed.
func (g *Gateway) Admit(ctx context.Context, provider string, r *http.Request) (*Result, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.ValidationError("failed to read request body")
	}

	if err := g.verifier.Verify(provider, body, signatureHeader(provider, r)); err != nil {
		g.logger.Warn("Webhook signature rejected",
			logging.String("provider", provider),
			logging.Err(err),
		)
		return nil, errors.UnauthorizedError("invalid webhook signature")
	}

	event, err := extractEvent(provider, body, r)
	if err != nil {
		return nil, err
	}

	// Check-then-mark for one (provider, eventId) is atomic under this lock,
	// so two concurrent deliveries of the same event dispatch exactly once.
	unlock := g.locks.lock(ledgerKey(event.Provider, event.ID))
	defer unlock()

	seen, err := g.ledger.Seen(ctx, event.Provider, event.ID)
	if err != nil {
		return nil, errors.InternalError("webhook ledger lookup failed", err)
	}
	if seen {
		g.logger.Info("Duplicate webhook delivery acknowledged",
			logging.String("provider", event.Provider),
			logging.String("event_id", event.ID),
		)
		return &Result{Outcome: OutcomeDuplicate, Event: event}, nil
	}

	if handler, ok := g.handler(event.Provider, event.Type); ok {
		if err := handler(ctx, event); err != nil {
			// Ledger untouched, so the sender's retry reattempts the handler
			return nil, errors.InternalError("webhook handler failed", err)
		}
	} else {
		g.logger.Debug("No handler for webhook event type, accepting",
			logging.String("provider", event.Provider),
			logging.String("event_type", event.Type),
		)
	}

	if err := g.ledger.Record(ctx, event.Provider, event.ID, event.Type, event.Payload); err != nil {
		// The handler already ran; surfacing this would trigger a retry and a
		// second dispatch, which is worse than a possible future duplicate.
		g.logger.Error("Webhook ledger write failed after dispatch",
			logging.String("provider", event.Provider),
			logging.String("event_id", event.ID),
			logging.Err(err),
		)
	}

	return &Result{Outcome: OutcomeProcessed, Event: event}, nil
}

func signatureHeader(provider string, r *http.Request) string {
	switch provider {
	case ProviderStripe:
		return r.Header.Get(StripeSignatureHeader)
	case ProviderGitHub:
		return r.Header.Get(GitHubSignatureHeader)
	default:
		return ""
	}
}

// extractEvent pulls the event identity out of a verified delivery. Stripe
// events carry id and type in the body; github deliveries carry both in
// headers; mailer events carry a type in the body but no id, so one is
// synthesized per call. A synthesized id deduplicates nothing upstream, it
// only keys this delivery's ledger entry.
func extractEvent(provider string, body []byte, r *http.Request) (Event, error) {
	event := Event{Provider: provider, Payload: body}

	switch provider {
	case ProviderStripe:
		var envelope struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return Event{}, errors.ValidationError("malformed webhook payload")
		}
		if envelope.ID == "" {
			return Event{}, errors.ValidationError("webhook payload missing event id")
		}
		event.ID = envelope.ID
		event.Type = envelope.Type

	case ProviderGitHub:
		event.ID = r.Header.Get(GitHubDeliveryHeader)
		event.Type = r.Header.Get(GitHubEventHeader)
		if event.ID == "" {
			event.ID = uuid.NewString()
		}

	case ProviderMailer:
		var envelope struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return Event{}, errors.ValidationError("malformed webhook payload")
		}
		event.ID = uuid.NewString()
		event.Type = envelope.Event

	default:
		return Event{}, errors.ValidationError("unknown webhook provider")
	}

	return event, nil
}

// keyedMutex hands out one mutex per live key. Entries are reference counted
// and removed on last unlock, so the map stays bounded by in-flight requests
// rather than by distinct event ids ever seen.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
