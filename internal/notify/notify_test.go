package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marginterm/internal/crypto"
	"github.com/alanyoungcy/marginterm/internal/domain"
)

type recordSender struct {
	name string
	got  []domain.Notification
	err  error
}

func (r *recordSender) Send(_ context.Context, n domain.Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func (r *recordSender) Name() string { return r.name }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func note(outcome domain.Outcome) domain.Notification {
	return domain.Notification{
		ActionID:    "a1",
		Kind:        domain.ActionDeposit,
		Outcome:     outcome,
		Title:       "Deposit successful",
		Description: "Deposited 10 USDC.",
		ExplorerURL: "https://explorer.solana.com/tx/abc",
		CreatedAt:   time.Unix(1700000000, 0),
	}
}

func TestNotifierFiltersExternalSenders(t *testing.T) {
	external := &recordSender{name: "telegram"}
	toast := &recordSender{name: "toast"}
	n := NewNotifier([]Sender{external}, []string{"failed"}, discard()).AlwaysSender(toast)

	require.NoError(t, n.Notify(context.Background(), note(domain.OutcomeSuccess)))
	require.NoError(t, n.Notify(context.Background(), note(domain.OutcomeFailed)))

	assert.Len(t, toast.got, 2)
	require.Len(t, external.got, 1)
	assert.Equal(t, domain.OutcomeFailed, external.got[0].Outcome)
}

func TestNotifierCombinesErrors(t *testing.T) {
	bad := &recordSender{name: "bad", err: errors.New("boom")}
	good := &recordSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.Notify(context.Background(), note(domain.OutcomeSuccess))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, good.got, 1)
}

func TestNotifierDropsRepeatedOutcome(t *testing.T) {
	toast := &recordSender{name: "toast"}
	n := NewNotifier(nil, nil, discard()).AlwaysSender(toast)

	require.NoError(t, n.Notify(context.Background(), note(domain.OutcomeSuccess)))
	require.NoError(t, n.Notify(context.Background(), note(domain.OutcomeSuccess)))
	assert.Len(t, toast.got, 1)

	other := note(domain.OutcomeSuccess)
	other.ActionID = "a2"
	require.NoError(t, n.Notify(context.Background(), other))
	assert.Len(t, toast.got, 2)
}

func TestDedupExpiresAndSweeps(t *testing.T) {
	now := time.Unix(1700000000, 0)
	d := NewDedup(time.Minute)
	d.now = func() time.Time { return now }

	assert.False(t, d.IsDuplicate("k"))
	assert.True(t, d.IsDuplicate("k"))

	now = now.Add(time.Minute)
	assert.False(t, d.IsDuplicate("k"), "expired keys are accepted again")

	for i := 0; i < sweepAt; i++ {
		d.IsDuplicate(fmt.Sprintf("old-%d", i))
	}
	now = now.Add(2 * time.Minute)
	d.IsDuplicate("fresh")
	assert.Equal(t, 1, d.Len())
}

func TestTelegramSender(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiURL = srv.URL
	require.NoError(t, s.Send(context.Background(), note(domain.OutcomeSuccess)))
	assert.Equal(t, "42", payload["chat_id"])
	assert.Contains(t, payload["text"], "[View transaction](https://explorer.solana.com/tx/abc)")
}

func TestDiscordSenderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), note(domain.OutcomeFailed))
	assert.ErrorContains(t, err, "unexpected status 400")
}

func TestWebhookSenderSigns(t *testing.T) {
	signer := crypto.NewWebhookSigner("s3cret")
	verified := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		verified = signer.Verify(raw, r.Header.Get(crypto.HeaderTimestamp), r.Header.Get(crypto.HeaderSignature))
	}))
	defer srv.Close()

	require.NoError(t, NewWebhookSender(srv.URL, "s3cret").Send(context.Background(), note(domain.OutcomeSuccess)))
	assert.True(t, verified)
}
