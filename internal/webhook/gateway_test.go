package webhook

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantgate/internal/common/errors"
	"tenantgate/internal/common/logging"
)

func testGateway() (*Gateway, *MemoryLedger) {
	verifier := NewVerifier(stripeSecret, githubSecret, 5*time.Minute)
	ledger := NewMemoryLedger()
	return NewGateway(verifier, ledger, logging.NewDefaultLogger()), ledger
}

func stripeRequest(body []byte) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body))
	r.Header.Set(StripeSignatureHeader, SignStripePayload(stripeSecret, body, time.Now()))
	return r
}

func githubRequest(body []byte, eventType, deliveryID string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	r.Header.Set(GitHubSignatureHeader, SignGitHubPayload(githubSecret, body))
	r.Header.Set(GitHubEventHeader, eventType)
	r.Header.Set(GitHubDeliveryHeader, deliveryID)
	return r
}

func TestGateway_DispatchAndRecord(t *testing.T) {
	gateway, ledger := testGateway()

	var got Event
	calls := 0
	gateway.Register(ProviderStripe, "checkout.session.completed", func(_ context.Context, e Event) error {
		calls++
		got = e
		return nil
	})

	body := []byte(`{"id":"evt_100","type":"checkout.session.completed"}`)
	result, err := gateway.Admit(context.Background(), ProviderStripe, stripeRequest(body))
	require.NoError(t, err)

	assert.Equal(t, OutcomeProcessed, result.Outcome)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "evt_100", got.ID)
	assert.Equal(t, "checkout.session.completed", got.Type)
	assert.Equal(t, body, got.Payload)

	seen, err := ledger.Seen(context.Background(), ProviderStripe, "evt_100")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestGateway_DuplicateNotRedispatched(t *testing.T) {
	gateway, _ := testGateway()

	calls := 0
	gateway.Register(ProviderStripe, "payment_intent.succeeded", func(context.Context, Event) error {
		calls++
		return nil
	})

	body := []byte(`{"id":"evt_dup","type":"payment_intent.succeeded"}`)

	result, err := gateway.Admit(context.Background(), ProviderStripe, stripeRequest(body))
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, result.Outcome)

	// Sender retry of the same event id: acknowledged, handler not re-run
	result, err = gateway.Admit(context.Background(), ProviderStripe, stripeRequest(body))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, result.Outcome)
	assert.Equal(t, 1, calls)
}

func TestGateway_TamperedBodyLeavesLedgerUnchanged(t *testing.T) {
	gateway, ledger := testGateway()

	calls := 0
	gateway.Register(ProviderStripe, "checkout.session.completed", func(context.Context, Event) error {
		calls++
		return nil
	})

	body := []byte(`{"id":"evt_t","type":"checkout.session.completed"}`)
	r := stripeRequest(body)
	// Mutate the body after signing
	tampered := []byte(`{"id":"evt_t","type":"checkout.session.completed","x":1}`)
	r.Body = httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(tampered)).Body

	_, err := gateway.Admit(context.Background(), ProviderStripe, r)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeUnauthorized))
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, ledger.Len())
}

func TestGateway_HandlerFailureAllowsRetry(t *testing.T) {
	gateway, ledger := testGateway()

	calls := 0
	gateway.Register(ProviderStripe, "customer.subscription.updated", func(context.Context, Event) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("downstream unavailable")
		}
		return nil
	})

	body := []byte(`{"id":"evt_retry","type":"customer.subscription.updated"}`)

	_, err := gateway.Admit(context.Background(), ProviderStripe, stripeRequest(body))
	require.Error(t, err)
	assert.Equal(t, 0, ledger.Len())

	// The retry runs the handler again because the failure was never recorded
	result, err := gateway.Admit(context.Background(), ProviderStripe, stripeRequest(body))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, result.Outcome)
	assert.Equal(t, 2, calls)
}

func TestGateway_UnknownEventTypeAccepted(t *testing.T) {
	gateway, ledger := testGateway()

	body := []byte(`{"id":"evt_unknown","type":"invoice.finalized"}`)
	result, err := gateway.Admit(context.Background(), ProviderStripe, stripeRequest(body))
	require.NoError(t, err)

	assert.Equal(t, OutcomeProcessed, result.Outcome)
	assert.Equal(t, 1, ledger.Len())
}

func TestGateway_GitHubEventFromHeaders(t *testing.T) {
	gateway, _ := testGateway()

	calls := 0
	gateway.Register(ProviderGitHub, "push", func(_ context.Context, e Event) error {
		calls++
		assert.Equal(t, "d-123", e.ID)
		return nil
	})

	body := []byte(`{"ref":"refs/heads/main"}`)

	result, err := gateway.Admit(context.Background(), ProviderGitHub, githubRequest(body, "push", "d-123"))
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, result.Outcome)

	// Redelivery with the same delivery id dispatches once
	result, err = gateway.Admit(context.Background(), ProviderGitHub, githubRequest(body, "push", "d-123"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, result.Outcome)
	assert.Equal(t, 1, calls)
}

func TestGateway_MailerSynthesizesEventID(t *testing.T) {
	gateway, _ := testGateway()

	calls := 0
	ids := map[string]bool{}
	gateway.Register(ProviderMailer, "delivered", func(_ context.Context, e Event) error {
		calls++
		ids[e.ID] = true
		return nil
	})

	body := []byte(`{"event":"delivered","recipient":"a@example.com"}`)
	for i := 0; i < 2; i++ {
		r := httptest.NewRequest(http.MethodPost, "/webhooks/mailer", bytes.NewReader(body))
		result, err := gateway.Admit(context.Background(), ProviderMailer, r)
		require.NoError(t, err)
		assert.Equal(t, OutcomeProcessed, result.Outcome)
	}

	// Synthesized ids cannot deduplicate identical upstream deliveries
	assert.Equal(t, 2, calls)
	assert.Len(t, ids, 2)
}

func TestGateway_MissingStripeEventID(t *testing.T) {
	gateway, _ := testGateway()

	body := []byte(`{"type":"checkout.session.completed"}`)
	_, err := gateway.Admit(context.Background(), ProviderStripe, stripeRequest(body))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
}

func TestGateway_ConcurrentSameEventDispatchesOnce(t *testing.T) {
	gateway, _ := testGateway()

	var calls int32
	gateway.Register(ProviderGitHub, "push", func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	body := []byte(`{"ref":"refs/heads/main"}`)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gateway.Admit(context.Background(), ProviderGitHub, githubRequest(body, "push", "d-race"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
