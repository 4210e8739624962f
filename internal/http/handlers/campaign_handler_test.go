package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/crowdfund-ton/backend/internal/events"
	"github.com/crowdfund-ton/backend/internal/fundsflow"
	"github.com/crowdfund-ton/backend/internal/ledger"
	"github.com/crowdfund-ton/backend/internal/ledger/ledgertest"
	"github.com/crowdfund-ton/backend/internal/metadata"
	"github.com/crowdfund-ton/backend/internal/models"
	"github.com/crowdfund-ton/backend/internal/reconcile"
	"github.com/crowdfund-ton/backend/internal/resolver"
	"github.com/crowdfund-ton/backend/internal/services"
	"github.com/crowdfund-ton/backend/internal/ton"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	signerAddr   = "0:" + strings.Repeat("a", 64)
	registryAddr = "0:" + strings.Repeat("f", 64)
	campaignAddr = "0:" + strings.Repeat("1", 64)
)

type nopAudit struct{}

func (nopAudit) Log(context.Context, models.AuditLog) error { return nil }

type emptyArchive struct{}

func (emptyArchive) Archive(context.Context, string) error   { return nil }
func (emptyArchive) Unarchive(context.Context, string) error { return nil }
func (emptyArchive) Archived(context.Context) (map[string]bool, error) {
	return map[string]bool{}, nil
}

type noNames struct{}

func (noNames) SetName(context.Context, string, string) error { return nil }
func (noNames) Names(context.Context, ...string) (map[string]string, error) {
	return map[string]string{}, nil
}

func newTestApp(t *testing.T, fake *ledgertest.Fake) *fiber.App {
	t.Helper()
	log := zap.NewNop()
	builder := fundsflow.NewBuilder(fake, 50, nil, log)
	rec := reconcile.New(fake, builder, reconcile.RetryPolicy{MaxAttempts: 1, Delay: time.Millisecond}, nil, log)
	res := resolver.New(fake, resolver.NewMemoryStore(), ton.CanonicalID, 50, nil, log)
	svc := services.NewCampaignService(fake, rec, builder, res, nopAudit{}, events.NopPublisher{}, emptyArchive{}, noNames{},
		services.Identity{Signer: signerAddr, Registry: registryAddr}, 50, nil, log)

	h := NewCampaignHandler(svc, log)
	app := fiber.New()
	app.Get("/campaigns/:id", h.GetCampaign)
	app.Post("/campaigns/:id/withdraw", h.Withdraw)
	app.Post("/campaigns/:id/donate", h.Donate)
	app.Put("/names/:address", h.SetDisplayName)

	rh := NewReceiptHandler(svc, log)
	app.Get("/receipts", rh.ListReceipts)
	return app
}

func putCampaign(t *testing.T, fake *ledgertest.Fake, c models.Campaign) {
	t.Helper()
	blob, err := metadata.Encode("Handler Test", "d", "")
	require.NoError(t, err)
	c.ID = campaignAddr
	c.Owner = signerAddr
	c.MetadataBlob = blob
	fake.Put(c)
}

func decode(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestGetCampaign(t *testing.T) {
	fake := ledgertest.New()
	putCampaign(t, fake, models.Campaign{Goal: 2_000_000_000, Raised: 500_000_000, DeadlineAt: time.Now().Add(time.Hour)})
	app := newTestApp(t, fake)

	resp, err := app.Test(httptest.NewRequest("GET", "/campaigns/"+campaignAddr, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decode(t, resp.Body)
	data := body["data"].(map[string]any)
	display := data["display"].(map[string]any)
	assert.Equal(t, "2", display["goal_ton"])
	assert.Equal(t, "0.5", display["raised_ton"])

	resp, err = app.Test(httptest.NewRequest("GET", "/campaigns/not-an-address", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestWithdrawOnFailedCampaignConflicts(t *testing.T) {
	fake := ledgertest.New()
	putCampaign(t, fake, models.Campaign{Goal: 100, Raised: 40, State: models.CampaignStateFailed})
	app := newTestApp(t, fake)

	resp, err := app.Test(httptest.NewRequest("POST", "/campaigns/"+campaignAddr+"/withdraw", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Zero(t, fake.Calls("SubmitTransaction"))
}

func TestDonateParsesTON(t *testing.T) {
	fake := ledgertest.New()
	putCampaign(t, fake, models.Campaign{Goal: 100, DeadlineAt: time.Now().Add(time.Hour)})
	app := newTestApp(t, fake)

	req := httptest.NewRequest("POST", "/campaigns/"+campaignAddr+"/donate", strings.NewReader(`{"amount_ton":"1.25"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NotNil(t, fake.LastSubmitted())
	assert.Equal(t, uint64(1_250_000_000), fake.LastSubmitted().Calls[0].Amount)

	req = httptest.NewRequest("POST", "/campaigns/"+campaignAddr+"/donate", strings.NewReader(`{"amount_ton":"abc"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{services.ErrInvalidAmount, fiber.StatusBadRequest},
		{services.ErrNotOwner, fiber.StatusForbidden},
		{fmt.Errorf("wrapped: %w", ledger.ErrNotFound), fiber.StatusNotFound},
		{resolver.ErrNotResolved, fiber.StatusNotFound},
		{services.ErrOperationInProgress, fiber.StatusConflict},
		{services.ErrWithdrawalUnconfirmed, fiber.StatusConflict},
		{services.ErrReadOnly, fiber.StatusServiceUnavailable},
		{errors.New("lite server unreachable"), fiber.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestWants(t *testing.T) {
	ev := events.Event{Type: events.EventOperationStatus, Payload: map[string]any{"campaign_id": campaignAddr}}
	assert.True(t, wants("", ev))
	assert.True(t, wants(campaignAddr, ev))
	assert.False(t, wants(registryAddr, ev))
}

func TestSetDisplayName(t *testing.T) {
	app := newTestApp(t, ledgertest.New())

	tests := []struct {
		name       string
		address    string
		body       string
		wantStatus int
	}{
		{"sets name", signerAddr, `{"name":"  Alice  "}`, fiber.StatusOK},
		{"clears name", signerAddr, `{"name":""}`, fiber.StatusOK},
		{"bad address", "nope", `{"name":"Alice"}`, fiber.StatusBadRequest},
		{"too long", signerAddr, fmt.Sprintf(`{"name":%q}`, strings.Repeat("x", 65)), fiber.StatusBadRequest},
		{"control character", signerAddr, `{"name":"a\u0007b"}`, fiber.StatusBadRequest},
		{"bad body", signerAddr, `{`, fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("PUT", "/names/"+tt.address, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}

	req := httptest.NewRequest("PUT", "/names/"+signerAddr, strings.NewReader(`{"name":"  Alice  "}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	data := decode(t, resp.Body)["data"].(map[string]any)
	assert.Equal(t, "Alice", data["name"])
	assert.Equal(t, signerAddr, data["address"])
}

func TestListReceipts(t *testing.T) {
	donor := "0:" + strings.Repeat("d", 64)
	receipt := "0:" + strings.Repeat("e", 64)
	fake := ledgertest.New()
	fake.Emit(models.LedgerEvent{Kind: models.EventDonated, CampaignID: campaignAddr, Actor: donor, ReceiptID: receipt, Amount: 7})
	fake.Receipts[receipt] = &models.DonationReceipt{ID: receipt, CampaignID: campaignAddr, DonorID: donor, Amount: 7}
	app := newTestApp(t, fake)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantTotal  float64
	}{
		{"by donor", "?donor=" + donor, fiber.StatusOK, 1},
		{"other donor", "?donor=" + signerAddr, fiber.StatusOK, 0},
		{"missing donor", "", fiber.StatusBadRequest, 0},
		{"bad donor", "?donor=nope", fiber.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", "/receipts"+tt.query, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus != fiber.StatusOK {
				return
			}
			data := decode(t, resp.Body)["data"].(map[string]any)
			assert.Equal(t, tt.wantTotal, data["total"])
		})
	}
}
