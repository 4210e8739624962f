package indexer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/crowdfund-ton/backend/internal/events"
	"github.com/crowdfund-ton/backend/internal/ledger/ledgertest"
	"github.com/crowdfund-ton/backend/internal/metadata"
	"github.com/crowdfund-ton/backend/internal/models"
	"github.com/crowdfund-ton/backend/internal/ton"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type source struct {
	*ledgertest.Fake
	head    ton.Cursor
	pending []models.LedgerEvent
	err     error
}

func (s *source) EventsSince(_ context.Context, cursor ton.Cursor) ([]models.LedgerEvent, ton.Cursor, error) {
	if s.err != nil {
		return nil, cursor, s.err
	}
	if cursor.LT == 0 || cursor.LT >= s.head.LT {
		return nil, s.head, nil
	}
	out := s.pending
	s.pending = nil
	return out, s.head, nil
}

type memCursor struct {
	lt    uint64
	hash  []byte
	saves int
}

func (m *memCursor) Load(context.Context) (uint64, []byte, error) { return m.lt, m.hash, nil }

func (m *memCursor) Save(_ context.Context, lt uint64, hash []byte) error {
	m.lt, m.hash = lt, hash
	m.saves++
	return nil
}

type slugMap map[string]string

func (s slugMap) Remember(_ context.Context, key, id string) error {
	s[key] = id
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, channel string, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if channel == events.ChannelCampaigns {
		r.events = append(r.events, ev)
	}
	return nil
}

func TestPollInitializesCursorAtHead(t *testing.T) {
	src := &source{Fake: ledgertest.New(), head: ton.Cursor{LT: 500, Hash: []byte{1}}}
	src.pending = []models.LedgerEvent{{Kind: models.EventDonated, CampaignID: "0:01", Amount: 10}}
	cur := &memCursor{}
	pub := &recorder{}

	n, err := New(src, cur, slugMap{}, pub, zap.NewNop()).Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, uint64(500), cur.lt)
	assert.Empty(t, pub.events)
}

func TestPollPublishesAndIndexesNewCampaigns(t *testing.T) {
	blob, err := metadata.Encode("Save the Bees", "pollinators", "")
	require.NoError(t, err)

	fake := ledgertest.New()
	fake.Put(models.Campaign{ID: "0:01", Goal: 100, MetadataBlob: blob, DeadlineAt: time.Now().Add(time.Hour)})

	succeeded := models.CampaignStateSucceeded
	src := &source{Fake: fake, head: ton.Cursor{LT: 900, Hash: []byte{9}}}
	src.pending = []models.LedgerEvent{
		{Kind: models.EventCampaignCreated, CampaignID: "0:01", Sequence: 1},
		{Kind: models.EventDonated, CampaignID: "0:01", Amount: 2_500_000_000, Sequence: 2, Actor: "0:d1", ReceiptID: "0:e1"},
		{Kind: models.EventForceSucceeded, CampaignID: "0:01", Sequence: 3, FinalState: &succeeded},
	}
	cur := &memCursor{lt: 700, hash: []byte{7}}
	slugs := slugMap{}
	pub := &recorder{}

	n, err := New(src, cur, slugs, pub, zap.NewNop()).Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, uint64(900), cur.lt)
	assert.Equal(t, "0:01", slugs["save-the-bees"])

	require.Len(t, pub.events, 3)
	assert.Equal(t, events.EventCampaignActivity, pub.events[0].Type)
	assert.NotContains(t, pub.events[0].Payload, "amount")
	assert.Equal(t, "2.5", pub.events[1].Payload["amount_ton"])
	assert.Equal(t, "0:d1", pub.events[1].Payload["donor"])
	assert.Equal(t, "0:e1", pub.events[1].Payload["receipt_id"])
	assert.Equal(t, events.EventForceSucceeded, pub.events[2].Type)
	assert.Equal(t, "succeeded", pub.events[2].Payload["final_state"])
}

func TestPollKeepsCursorOnSourceError(t *testing.T) {
	src := &source{Fake: ledgertest.New(), err: errors.New("liteserver timeout")}
	cur := &memCursor{lt: 42}

	_, err := New(src, cur, slugMap{}, &recorder{}, zap.NewNop()).Poll(context.Background())
	require.Error(t, err)
	assert.Equal(t, uint64(42), cur.lt)
	assert.Zero(t, cur.saves)
}

func TestPollSkipsUnreadableNewCampaign(t *testing.T) {
	src := &source{Fake: ledgertest.New(), head: ton.Cursor{LT: 20}}
	src.pending = []models.LedgerEvent{{Kind: models.EventCampaignCreated, CampaignID: "0:missing"}}
	cur := &memCursor{lt: 10}
	slugs := slugMap{}

	n, err := New(src, cur, slugs, &recorder{}, zap.NewNop()).Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, slugs)
	assert.Equal(t, uint64(20), cur.lt)
}
