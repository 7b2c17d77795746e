package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-08-24 周一
func weekdayAt(hour, min, sec int) time.Time {
	return time.Date(2026, 8, 24, hour, min, sec, 0, time.Local)
}

func TestPhaseManagerSchedule(t *testing.T) {
	cases := []struct {
		name string
		at   time.Time
		want Phase
	}{
		{"before open", weekdayAt(7, 59, 59), PhaseClosed},
		{"pre-open start", weekdayAt(8, 0, 0), PhasePreOpen},
		{"pre-open end", weekdayAt(9, 29, 29), PhasePreOpen},
		{"auction start", weekdayAt(9, 29, 30), PhaseOpeningAuction},
		{"continuous start", weekdayAt(9, 30, 0), PhaseContinuous},
		{"mid session", weekdayAt(12, 0, 0), PhaseContinuous},
		{"close", weekdayAt(16, 0, 0), PhaseClosed},
		{"saturday", time.Date(2026, 8, 22, 12, 0, 0, 0, time.Local), PhaseClosed},
		{"sunday", time.Date(2026, 8, 23, 12, 0, 0, 0, time.Local), PhaseClosed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			at := tc.at
			m := NewPhaseManager(DefaultSchedule(), WithClock(func() time.Time { return at }))
			assert.Equal(t, tc.want, m.Current().Phase)
		})
	}
}

func TestPhaseCapabilityVector(t *testing.T) {
	pre := StateFor(PhasePreOpen)
	assert.True(t, pre.OrderEntryAllowed)
	assert.True(t, pre.CancellationAllowed)
	assert.False(t, pre.MatchingEnabled)
	assert.Equal(t, StyleNone, pre.Style)

	auction := StateFor(PhaseOpeningAuction)
	assert.False(t, auction.OrderEntryAllowed)
	assert.False(t, auction.CancellationAllowed)
	assert.Equal(t, StyleBatch, auction.Style)

	cont := StateFor(PhaseContinuous)
	assert.True(t, cont.OrderEntryAllowed)
	assert.Equal(t, StyleContinuous, cont.Style)

	closed := StateFor(PhaseClosed)
	assert.False(t, closed.OrderEntryAllowed)
	assert.Equal(t, StyleNone, closed.Style)
}

func TestParseClock(t *testing.T) {
	secs, err := ParseClock("09:29:30")
	require.NoError(t, err)
	assert.Equal(t, 9*3600+29*60+30, secs)

	_, err = ParseClock("25:00:00")
	assert.Error(t, err)
	_, err = ParseClock("not a clock")
	assert.Error(t, err)
}

func TestNewScheduleRejectsOverlap(t *testing.T) {
	_, err := NewSchedule([]ScheduleWindow{
		{Start: 100, End: 300, Phase: PhasePreOpen},
		{Start: 200, End: 400, Phase: PhaseContinuous},
	})
	assert.Error(t, err)
}

type recordingActions struct {
	auctions    int
	massCancels int
}

func (r *recordingActions) ExecuteOpeningAuction() map[string]*AuctionResult {
	r.auctions++
	return map[string]*AuctionResult{}
}

func (r *recordingActions) CancelAllOrders() []*Order {
	r.massCancels++
	return nil
}

func TestTransitionHandlerFirstCallRecordsOnly(t *testing.T) {
	actions := &recordingActions{}
	h := NewTransitionHandler(actions)

	out := h.Check(PhasePreOpen)
	assert.Nil(t, out)
	assert.Zero(t, actions.auctions)
}

func TestTransitionHandlerOpeningAuctionEdge(t *testing.T) {
	actions := &recordingActions{}
	h := NewTransitionHandler(actions)

	h.Check(PhasePreOpen)
	out := h.Check(PhaseOpeningAuction)
	require.NotNil(t, out)
	assert.Equal(t, PhasePreOpen, out.From)
	assert.Equal(t, PhaseOpeningAuction, out.To)
	assert.Equal(t, 1, actions.auctions)
	assert.NotNil(t, out.Auction)
}

func TestTransitionHandlerIdempotent(t *testing.T) {
	actions := &recordingActions{}
	h := NewTransitionHandler(actions)

	h.Check(PhasePreOpen)
	h.Check(PhaseOpeningAuction)
	assert.Nil(t, h.Check(PhaseOpeningAuction))
	assert.Nil(t, h.Check(PhaseOpeningAuction))
	assert.Equal(t, 1, actions.auctions)
}

func TestTransitionHandlerCloseCancelsAll(t *testing.T) {
	actions := &recordingActions{}
	h := NewTransitionHandler(actions)

	h.Check(PhaseContinuous)
	out := h.Check(PhaseClosed)
	require.NotNil(t, out)
	assert.Equal(t, 1, actions.massCancels)
	assert.Zero(t, actions.auctions)
}

func TestTransitionHandlerNoOpPairs(t *testing.T) {
	actions := &recordingActions{}
	h := NewTransitionHandler(actions)

	h.Check(PhaseClosed)
	out := h.Check(PhasePreOpen)
	require.NotNil(t, out)
	assert.Zero(t, actions.auctions)
	assert.Zero(t, actions.massCancels)
}

// 时钟推进到收盘后，场所全撤在簿订单且拒绝后续委托
func TestVenueCloseCancelsAllOrders(t *testing.T) {
	now := weekdayAt(12, 0, 0)
	phases := NewPhaseManager(DefaultSchedule(), WithClock(func() time.Time { return now }))
	batch := testBatchEngine(MaxVolumeStrategy{})
	venue := NewVenue(VenueConfig{Mode: ModeContinuous, AllowSelfTrade: true}, NewInstrumentRegistry(), phases, batch)

	require.NoError(t, venue.ListInstrument(&Instrument{Symbol: "SPY-C-100", Kind: KindOption}))

	// 记录基准时段
	venue.CheckPhaseTransitions()

	_, err := venue.Submit(limitOrder("ORD-1", "T1", OrderSideBuy, 100, 10))
	require.NoError(t, err)
	_, err = venue.Submit(limitOrder("ORD-2", "T1", OrderSideSell, 105, 5))
	require.NoError(t, err)
	require.Len(t, venue.OpenOrders("T1"), 2)

	now = weekdayAt(16, 0, 0)
	out := venue.CheckPhaseTransitions()
	require.NotNil(t, out)
	assert.Equal(t, PhaseContinuous, out.From)
	assert.Equal(t, PhaseClosed, out.To)
	assert.Len(t, out.Cancelled, 2)
	assert.Empty(t, venue.OpenOrders("T1"))

	result, err := venue.Submit(limitOrder("ORD-3", "T1", OrderSideBuy, 100, 1))
	require.NoError(t, err)
	assert.Equal(t, OrderStatusRejected, result.Status)
	assert.Equal(t, ReasonMarketClosed, result.Reason)
}

func TestVenuePreOpenRoutesToBatch(t *testing.T) {
	now := weekdayAt(8, 30, 0)
	phases := NewPhaseManager(DefaultSchedule(), WithClock(func() time.Time { return now }))
	batch := testBatchEngine(MaxVolumeStrategy{})
	venue := NewVenue(VenueConfig{Mode: ModeContinuous, AllowSelfTrade: true}, NewInstrumentRegistry(), phases, batch)

	require.NoError(t, venue.ListInstrument(&Instrument{Symbol: "SPY-C-100", Kind: KindOption}))
	venue.CheckPhaseTransitions()

	result, err := venue.Submit(limitOrder("ORD-1", "T1", OrderSideBuy, 100, 10))
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPendingNew, result.Status)

	result2, err := venue.Submit(limitOrder("ORD-2", "T2", OrderSideSell, 99, 10))
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPendingNew, result2.Status)
	assert.Equal(t, 2, batch.PendingCount())

	// 进入集合竞价：执行撮合且竞价期间拒单
	now = weekdayAt(9, 29, 30)
	out := venue.CheckPhaseTransitions()
	require.NotNil(t, out)
	require.NotNil(t, out.Auction)
	auction := out.Auction["SPY-C-100"]
	require.NotNil(t, auction)
	assert.True(t, auction.Priced)
	assert.Equal(t, int64(10), auction.Volume)

	rejected, err := venue.Submit(limitOrder("ORD-3", "T3", OrderSideBuy, 100, 1))
	require.NoError(t, err)
	assert.Equal(t, OrderStatusRejected, rejected.Status)
	assert.Equal(t, ReasonAuctionInProgress, rejected.Reason)
}

func TestVenueUnknownInstrument(t *testing.T) {
	now := weekdayAt(12, 0, 0)
	phases := NewPhaseManager(DefaultSchedule(), WithClock(func() time.Time { return now }))
	venue := NewVenue(VenueConfig{Mode: ModeContinuous}, NewInstrumentRegistry(), phases, testBatchEngine(MaxVolumeStrategy{}))

	_, err := venue.Submit(limitOrder("ORD-1", "T1", OrderSideBuy, 100, 1))
	assert.ErrorIs(t, err, ErrUnknownInstrument)

	_, err = venue.Depth("SPY-C-100", 5)
	assert.ErrorIs(t, err, ErrUnknownInstrument)
}

func TestVenueDuplicateListing(t *testing.T) {
	now := weekdayAt(12, 0, 0)
	phases := NewPhaseManager(DefaultSchedule(), WithClock(func() time.Time { return now }))
	venue := NewVenue(VenueConfig{Mode: ModeContinuous}, NewInstrumentRegistry(), phases, testBatchEngine(MaxVolumeStrategy{}))

	inst := &Instrument{Symbol: "SPY-C-100", Kind: KindOption, Strike: decimal.NewFromInt(100)}
	require.NoError(t, venue.ListInstrument(inst))
	assert.ErrorIs(t, venue.ListInstrument(inst), ErrSymbolExists)
}
