package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/ns-shortener/pkg/ports"
)

func TestClickDispatcher_DropsWhenFull(t *testing.T) {
	d := NewClickDispatcher(fixedGeo{}, &memLedger{}, newMemURLCache(), DispatcherConfig{QueueSize: 2, Workers: 1})

	assert.True(t, d.Dispatch(ports.ClickJob{NamespaceID: "ns1", Shortcode: "a"}))
	assert.True(t, d.Dispatch(ports.ClickJob{NamespaceID: "ns1", Shortcode: "b"}))
	assert.False(t, d.Dispatch(ports.ClickJob{NamespaceID: "ns1", Shortcode: "c"}))
}

func TestClickDispatcher_RecordsEvents(t *testing.T) {
	ledger := &memLedger{}
	cache := newMemURLCache()
	geo := fixedGeo{loc: domain.Location{Country: "Thailand", City: "Bangkok"}}
	d := NewClickDispatcher(geo, ledger, cache, DispatcherConfig{QueueSize: 16, Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()

	ts := time.Date(2025, 3, 14, 23, 59, 59, 0, time.UTC)
	require.True(t, d.Dispatch(ports.ClickJob{
		NamespaceID: "ns1",
		Shortcode:   "abc",
		Meta:        domain.ClientMeta{IP: "203.0.113.9", Referer: "https://news.example", Timestamp: ts},
	}))

	require.Eventually(t, func() bool { return ledger.len() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return cache.hotScore("ns1", "abc") == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	e := ledger.events[0]
	assert.NotEmpty(t, e.EventID)
	assert.Equal(t, "2025-03-14", e.ClickDate)
	assert.Equal(t, ts, e.Timestamp)
	assert.Equal(t, "Thailand", e.Country)
	assert.Equal(t, "Bangkok", e.City)
	assert.Equal(t, domain.LocationUnknown, e.UserAgent)
	assert.Equal(t, "https://news.example", e.Referer)
}

func TestClickDispatcher_LedgerFailureStillBumpsHot(t *testing.T) {
	ledger := &memLedger{failErr: errors.New("disk full")}
	cache := newMemURLCache()
	d := NewClickDispatcher(fixedGeo{loc: domain.UnknownLocation}, ledger, cache, DispatcherConfig{QueueSize: 4, Workers: 1})

	require.True(t, d.Dispatch(ports.ClickJob{NamespaceID: "ns1", Shortcode: "x"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// A cancelled context goes straight to the drain.
	_ = d.Serve(ctx)

	assert.Zero(t, ledger.len())
	assert.Equal(t, float64(1), cache.hotScore("ns1", "x"))
}

func TestClickDispatcher_DrainsOnShutdown(t *testing.T) {
	ledger := &memLedger{}
	d := NewClickDispatcher(fixedGeo{loc: domain.UnknownLocation}, ledger, newMemURLCache(), DispatcherConfig{QueueSize: 8, Workers: 1})

	for i := 0; i < 5; i++ {
		require.True(t, d.Dispatch(ports.ClickJob{NamespaceID: "ns1", Shortcode: "x"}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Serve(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, ledger.len())
}
