package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quote-engine-go/order"
)

func TestPaperLifecycle(t *testing.T) {
	p := NewPaperExchange("BTCUSDT")
	ctx := context.Background()

	id, err := p.PlaceOrder(ctx, PlaceRequest{
		Instrument: "BTCUSDT", ClientID: "c1", Side: order.Buy,
		Price: decimal.RequireFromString("99"), Size: decimal.RequireFromString("1"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	open, err := p.ListOpenOrders(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "c1", open[0].ClientID)

	require.NoError(t, p.AmendOrder(ctx, "BTCUSDT", id,
		decimal.RequireFromString("98"), decimal.RequireFromString("2")))
	open, _ = p.ListOpenOrders(ctx, "BTCUSDT")
	assert.True(t, open[0].Price.Equal(decimal.RequireFromString("98")))

	require.NoError(t, p.CancelOrder(ctx, "BTCUSDT", id))
	assert.ErrorIs(t, p.CancelOrder(ctx, "BTCUSDT", id), ErrOrderNotFound)
}

func TestPaperFillsOnCross(t *testing.T) {
	p := NewPaperExchange("BTCUSDT")
	h := &captureHandler{}
	p.SetHandler(h)
	ctx := context.Background()

	_, err := p.PlaceOrder(ctx, PlaceRequest{
		ClientID: "bid", Side: order.Buy,
		Price: decimal.RequireFromString("99"), Size: decimal.RequireFromString("1"),
	})
	require.NoError(t, err)
	_, err = p.PlaceOrder(ctx, PlaceRequest{
		ClientID: "ask", Side: order.Sell,
		Price: decimal.RequireFromString("101"), Size: decimal.RequireFromString("1"),
	})
	require.NoError(t, err)

	// Inside the quotes: nothing crosses.
	p.MarkPrice(decimal.RequireFromString("100"), time.Unix(0, 0))
	assert.Empty(t, h.fills)

	// Through the bid.
	p.MarkPrice(decimal.RequireFromString("98.5"), time.Unix(1, 0))
	require.Len(t, h.fills, 1)
	assert.Equal(t, "bid", h.fills[0].ClientID)
	assert.True(t, h.fills[0].Price.Equal(decimal.RequireFromString("99")), "fills at the limit price")
	require.Len(t, h.updates, 1)
	assert.Equal(t, order.StatusFilled, h.updates[0].Status)

	open, _ := p.ListOpenOrders(ctx, "BTCUSDT")
	require.Len(t, open, 1)
	assert.Equal(t, "ask", open[0].ClientID)
}

func TestPaperFailInjection(t *testing.T) {
	p := NewPaperExchange("BTCUSDT")
	ctx := context.Background()
	boom := errors.New("boom")
	p.Fail(boom)

	_, err := p.PlaceOrder(ctx, PlaceRequest{
		ClientID: "c", Side: order.Buy,
		Price: decimal.RequireFromString("1"), Size: decimal.RequireFromString("1"),
	})
	assert.ErrorIs(t, err, boom)
	_, err = p.ListOpenOrders(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, boom)

	p.Fail(nil)
	_, err = p.PlaceOrder(ctx, PlaceRequest{
		ClientID: "c", Side: order.Buy,
		Price: decimal.RequireFromString("1"), Size: decimal.RequireFromString("1"),
	})
	assert.NoError(t, err)
}
