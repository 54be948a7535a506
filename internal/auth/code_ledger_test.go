package auth

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, ttl time.Duration) (*AuthorizationCodeLedger, *fixedClock) {
	t.Helper()
	clock := &fixedClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	ledger := NewAuthorizationCodeLedger(NewGormCodeStore(setupTestDB(t)), ttl)
	ledger.now = clock.Now
	return ledger, clock
}

func issueTestCode(t *testing.T, ledger *AuthorizationCodeLedger, params IssueParams) *AuthorizationCode {
	t.Helper()
	if params.Client == nil {
		params.Client = &Client{ID: "c1"}
	}
	if params.RedirectURI == "" {
		params.RedirectURI = "https://app.example/cb"
	}
	code, err := ledger.Issue(context.Background(), params)
	require.NoError(t, err)
	return code
}

func TestLedger_IssueGeneratesRandomCodes(t *testing.T) {
	ledger, clock := newTestLedger(t, 0)

	first := issueTestCode(t, ledger, IssueParams{Principal: Principal{ID: "42"}, State: "xyz"})
	second := issueTestCode(t, ledger, IssueParams{Principal: Principal{ID: "42"}})

	assert.NotEqual(t, first.Code, second.Code)
	raw, err := base64.RawURLEncoding.DecodeString(first.Code)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	assert.Equal(t, clock.now.Add(DefaultCodeTTL), first.ExpiresAt)
	assert.Equal(t, "xyz", first.State)
	assert.False(t, first.Used)
}

func TestLedger_IssueRequiresClient(t *testing.T) {
	ledger, _ := newTestLedger(t, 0)

	_, err := ledger.Issue(context.Background(), IssueParams{})
	assert.Error(t, err)
}

func TestLedger_FindValidRespectsExpiry(t *testing.T) {
	ledger, clock := newTestLedger(t, time.Minute)
	ctx := context.Background()
	code := issueTestCode(t, ledger, IssueParams{Principal: Principal{ID: "42"}, Scopes: []string{"read"}})

	found, err := ledger.FindValid(ctx, code.Code)
	require.NoError(t, err)
	assert.Equal(t, "42", found.Principal.ID)
	assert.Equal(t, []string{"read"}, found.Scopes)

	clock.Advance(59 * time.Second)
	_, err = ledger.FindValid(ctx, code.Code)
	assert.NoError(t, err)

	clock.Advance(time.Second)
	_, err = ledger.FindValid(ctx, code.Code)
	assert.ErrorIs(t, err, ErrCodeNotFound, "a code is invalid at exactly expires_at")
}

func TestLedger_FindValidUnknownCode(t *testing.T) {
	ledger, _ := newTestLedger(t, 0)

	_, err := ledger.FindValid(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrCodeNotFound)

	_, err = ledger.FindValid(context.Background(), "")
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestLedger_MarkUsedIsPermanent(t *testing.T) {
	ledger, _ := newTestLedger(t, 0)
	ctx := context.Background()
	code := issueTestCode(t, ledger, IssueParams{Principal: Principal{ID: "42"}})

	require.NoError(t, ledger.MarkUsed(ctx, code.Code))

	_, err := ledger.FindValid(ctx, code.Code)
	assert.ErrorIs(t, err, ErrCodeNotFound)

	err = ledger.MarkUsed(ctx, code.Code)
	assert.ErrorIs(t, err, ErrCodeNotFound)

	_, err = ledger.FindValid(ctx, code.Code)
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestLedger_MarkUsedRejectsExpiredCode(t *testing.T) {
	ledger, clock := newTestLedger(t, time.Minute)
	code := issueTestCode(t, ledger, IssueParams{Principal: Principal{ID: "42"}})

	clock.Advance(2 * time.Minute)
	err := ledger.MarkUsed(context.Background(), code.Code)
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestLedger_RemoveExpired(t *testing.T) {
	ledger, clock := newTestLedger(t, time.Minute)
	ctx := context.Background()

	old := issueTestCode(t, ledger, IssueParams{Principal: Principal{ID: "1"}})
	clock.Advance(30 * time.Second)
	fresh := issueTestCode(t, ledger, IssueParams{Principal: Principal{ID: "2"}})
	clock.Advance(31 * time.Second)

	removed, err := ledger.RemoveExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = ledger.store.GetCode(ctx, old.Code)
	assert.ErrorIs(t, err, ErrCodeNotFound)
	_, err = ledger.FindValid(ctx, fresh.Code)
	assert.NoError(t, err)
}

func TestLedger_SweepStopsWithContext(t *testing.T) {
	ledger, clock := newTestLedger(t, time.Minute)
	issueTestCode(t, ledger, IssueParams{Principal: Principal{ID: "1"}})
	clock.Advance(time.Hour)

	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ledger.Sweep(ctx, 10*time.Millisecond, logger)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		var count int64
		ledger.store.(*GormCodeStore).db.Table("oauth_codes").Count(&count)
		return count == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
