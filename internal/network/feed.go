package network

import (
	"context"
	"fmt"
	"sync"
	"time"

	"GuardVault/internal/dispatch"
	"GuardVault/internal/logger"
	"GuardVault/internal/wallet"
)

const (
	// feedQueueSize bounds the events waiting to be broadcast.
	feedQueueSize = 1024

	// submitTimeout bounds one transaction submitted over the feed.
	submitTimeout = 10 * time.Second
)

// TxSubmitter validates and applies signed transactions.
type TxSubmitter interface {
	Submit(ctx context.Context, data []byte) (*dispatch.Result, error)
}

// EventSource reads the persisted audit log.
type EventSource interface {
	Events(from uint64, limit int) ([]wallet.Event, error)
}

// Feed serves the vault over a listening Node. Committed events are pushed
// to every connected monitor; monitors may submit transactions and backfill
// the log through requests.
type Feed struct {
	node      *Node
	submitter TxSubmitter
	events    EventSource

	queue chan []byte    // queue holds framed events awaiting broadcast
	stop  chan struct{}  // stop ends the broadcast loop
	wg    sync.WaitGroup // wg waits for the broadcast loop
	once  sync.Once      // once guards Close
}

// NewFeed creates a feed listening on cfg.ListenAddr. Handlers in cfg are
// replaced by the feed's own. Call Start before publishing.
func NewFeed(cfg Config, submitter TxSubmitter, events EventSource) (*Feed, error) {
	f := &Feed{
		submitter: submitter,
		events:    events,
		queue:     make(chan []byte, feedQueueSize),
		stop:      make(chan struct{}),
	}

	cfg.Handlers = Handlers{
		Connect: func(p *Peer) {
			logger.Info("monitor connected", "peer", p.Address())
		},
		Disconnect: func(p *Peer) {
			logger.Info("monitor disconnected", "peer", p.Address())
		},
		Request: f.handleRequest,
	}

	node, err := NewNode(cfg)
	if err != nil {
		return nil, err
	}

	f.node = node

	return f, nil
}

// Start listens and starts broadcasting.
func (f *Feed) Start() error {
	if err := f.node.Start(); err != nil {
		return err
	}

	f.wg.Add(1)
	go f.broadcastLoop()

	logger.Info("event feed listening", "addr", f.node.Addr())

	return nil
}

// Addr returns the listen address once started.
func (f *Feed) Addr() string {
	return f.node.Addr()
}

// Monitors returns the number of connected monitors.
func (f *Feed) Monitors() int {
	return len(f.node.Peers())
}

// Publish queues a committed event for broadcast. It never blocks the
// vault: when the queue is full the event is dropped and monitors recover
// it by backfilling.
func (f *Feed) Publish(e wallet.Event) {
	select {
	case f.queue <- encodeEventMessage(&e):
	default:
		logger.Warn("feed queue full, event dropped", "seq", e.Seq)
	}
}

// Close stops broadcasting and closes the listener and every connection.
func (f *Feed) Close() {
	f.once.Do(func() {
		close(f.stop)
		f.wg.Wait()
		f.node.Close()
	})
}

// broadcastLoop sends queued events to every connected peer.
func (f *Feed) broadcastLoop() {
	defer f.wg.Done()

	for {
		select {
		case msg := <-f.queue:
			if err := f.node.Broadcast(msg); err != nil {
				logger.Debug("event broadcast incomplete", "error", err)
			}
		case <-f.stop:
			return
		}
	}
}

// handleRequest serves one monitor request.
func (f *Feed) handleRequest(p *Peer, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty request")
	}

	switch data[0] {
	case reqSubmitTx:
		return f.handleSubmit(data[1:]), nil

	case reqEvents:
		from, limit, err := decodeEventsRequest(data[1:])
		if err != nil {
			return encodeRejection(err), nil
		}

		return f.handleEvents(from, limit), nil
	}

	return nil, fmt.Errorf("unknown request type: %d", data[0])
}

// handleSubmit applies a transaction and encodes the outcome.
func (f *Feed) handleSubmit(tx []byte) []byte {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	res, err := f.submitter.Submit(ctx, tx)
	if err != nil {
		return encodeRejection(err)
	}

	return encodeTxReply(res.Hash, res.Function, res.Output)
}

// handleEvents reads a page of the audit log.
func (f *Feed) handleEvents(from uint64, limit uint32) []byte {
	if limit == 0 || limit > maxBackfill {
		limit = maxBackfill
	}

	events, err := f.events.Events(from, int(limit))
	if err != nil {
		logger.Error("read events for backfill", "error", err)
		return encodeRejection(fmt.Errorf("read events failed"))
	}

	return encodeEventsReply(events)
}
