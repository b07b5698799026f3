// Package hub serializes every chat command through one goroutine that owns the router.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chatrelay/internal/router"
	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// ConnectionLookup resolves delivery targets
type ConnectionLookup interface {
	GetConnection(id string) (interfaces.Connection, bool)
}

// Options tunes hub buffering and the archive forwarder
type Options struct {
	CommandBuffer   int
	ArchiveBuffer   int
	ArchiveTimeout  time.Duration
	CleanupInterval time.Duration
	Tracer          trace.Tracer
}

func (o Options) withDefaults() Options {
	if o.CommandBuffer <= 0 {
		o.CommandBuffer = 1000
	}
	if o.ArchiveBuffer <= 0 {
		o.ArchiveBuffer = 1000
	}
	if o.ArchiveTimeout <= 0 {
		o.ArchiveTimeout = 5 * time.Second
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = time.Minute
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer("chatrelay/internal/hub")
	}
	return o
}

// inbound is one item on the hub's FIFO: a command, a disconnect, or a state query
type inbound struct {
	connectionID string
	envelope     types.Envelope
	disconnect   bool
	query        chan router.Snapshot
}

// Hub coordinates command processing and event delivery
// ARCHITECTURAL DISCOVERY: Commands, disconnects and queries share one channel,
// so a connection's disconnect is always applied after its earlier commands
type Hub struct {
	commandChannel  chan inbound
	archiveChannel  chan router.ArchiveRecord
	shutdownChannel chan struct{}
	done            chan struct{}

	connections ConnectionLookup
	router      *router.Router
	archive     interfaces.Archiver
	opts        Options

	running bool
	mu      sync.RWMutex
	wg      sync.WaitGroup
}

// NewHub creates a hub; archive may be nil
func NewHub(connections ConnectionLookup, r *router.Router, archive interfaces.Archiver, opts Options) (*Hub, error) {
	if connections == nil {
		return nil, ErrNilConnections
	}
	if r == nil {
		return nil, ErrNilRouter
	}
	opts = opts.withDefaults()
	return &Hub{
		commandChannel:  make(chan inbound, opts.CommandBuffer),
		archiveChannel:  make(chan router.ArchiveRecord, opts.ArchiveBuffer),
		shutdownChannel: make(chan struct{}),
		done:            make(chan struct{}),
		connections:     connections,
		router:          r,
		archive:         archive,
		opts:            opts,
	}, nil
}

// Start begins hub processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return ErrHubAlreadyRunning
	}
	select {
	case <-h.shutdownChannel:
		return ErrHubNotRunning
	default:
	}
	h.running = true

	log.Println("Starting chat hub...")

	h.wg.Add(1)
	go h.run(ctx)

	if h.archive != nil {
		h.wg.Add(1)
		go h.forwardArchive()
	}
	return nil
}

// Stop shuts the hub down and waits for its goroutines
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	h.mu.Unlock()

	log.Println("Stopping chat hub...")
	h.wg.Wait()
	return nil
}

// Submit queues a command without blocking
func (h *Hub) Submit(connectionID string, env types.Envelope) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return ErrHubNotRunning
	}

	select {
	case h.commandChannel <- inbound{connectionID: connectionID, envelope: env}:
		return nil
	default:
		return ErrCommandChannelFull
	}
}

// Disconnect queues teardown for a connection, blocking until accepted or the hub exits
// FUNCTIONAL DISCOVERY: A dropped disconnect would leak the user's name and
// room memberships, so this path never gives up while the hub runs
func (h *Hub) Disconnect(connectionID string) {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return
	}

	select {
	case h.commandChannel <- inbound{connectionID: connectionID, disconnect: true}:
	case <-h.done:
	}
}

// Snapshot returns chat state as of all previously queued commands
func (h *Hub) Snapshot(ctx context.Context) (router.Snapshot, error) {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return router.Snapshot{}, ErrHubNotRunning
	}

	reply := make(chan router.Snapshot, 1)
	select {
	case h.commandChannel <- inbound{query: reply}:
	case <-h.done:
		return router.Snapshot{}, ErrHubNotRunning
	case <-ctx.Done():
		return router.Snapshot{}, ctx.Err()
	}

	select {
	case snap := <-reply:
		return snap, nil
	case <-h.done:
		return router.Snapshot{}, ErrHubNotRunning
	case <-ctx.Done():
		return router.Snapshot{}, ctx.Err()
	}
}

// run is the main hub processing loop
// TECHNICAL DISCOVERY: The router is touched only here, so no chat state needs a lock
func (h *Hub) run(ctx context.Context) {
	defer h.wg.Done()
	defer close(h.done)
	defer log.Println("Hub processing stopped")

	ticker := time.NewTicker(h.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case in := <-h.commandChannel:
			if in.query != nil {
				in.query <- h.router.Snapshot()
				continue
			}
			h.process(ctx, in)

		case <-ticker.C:
			h.router.CleanupRateLimits()

		case <-h.shutdownChannel:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			return
		}
	}
}

// process applies one command inside its own span
func (h *Hub) process(ctx context.Context, in inbound) {
	command := in.envelope.Type
	if in.disconnect {
		command = types.CommandDisconnect
	}

	_, span := h.opts.Tracer.Start(ctx, "chat."+command,
		trace.WithAttributes(attribute.String("chat.connection_id", in.connectionID)))
	defer span.End()

	var (
		out router.Outcome
		err error
	)
	if in.disconnect {
		out = h.router.Disconnect(in.connectionID)
	} else {
		out, err = h.router.Dispatch(in.connectionID, in.envelope)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Printf("Command not applied: type=%s from=%s: %v", command, in.connectionID, err)
	}

	delivered, dropped := h.deliver(out)
	span.SetAttributes(
		attribute.Int("chat.events", len(out.Deliveries)),
		attribute.Int("chat.frames_delivered", delivered),
		attribute.Int("chat.frames_dropped", dropped),
	)
}

// deliver writes an outcome's events to live connections without blocking
// FUNCTIONAL DISCOVERY: Each event is marshalled once and shared by every target;
// a connection whose queue is full is closed rather than stalling the hub
func (h *Hub) deliver(out router.Outcome) (delivered, dropped int) {
	for _, d := range out.Deliveries {
		data, err := json.Marshal(d.Event)
		if err != nil {
			log.Printf("Failed to encode %s event: %v", d.Event.Type, err)
			continue
		}
		for _, id := range d.To {
			conn, ok := h.connections.GetConnection(id)
			if !ok {
				continue
			}
			if err := conn.WriteRaw(data); err != nil {
				dropped++
				log.Printf("Closing connection %s after failed %s delivery: %v", id, d.Event.Type, err)
				_ = conn.Close()
				continue
			}
			delivered++
		}
	}

	for _, id := range out.Terminate {
		if conn, ok := h.connections.GetConnection(id); ok {
			conn.CloseGracefully()
		}
	}

	if h.archive != nil {
		for _, rec := range out.Archive {
			select {
			case h.archiveChannel <- rec:
			default:
				log.Printf("Archive queue full, dropping record")
			}
		}
	}
	return delivered, dropped
}

// forwardArchive hands committed records to the archive off the hub goroutine
func (h *Hub) forwardArchive() {
	defer h.wg.Done()

	for {
		select {
		case rec := <-h.archiveChannel:
			h.store(rec)
		case <-h.shutdownChannel:
			for {
				select {
				case rec := <-h.archiveChannel:
					h.store(rec)
				default:
					return
				}
			}
		}
	}
}

func (h *Hub) store(rec router.ArchiveRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.ArchiveTimeout)
	defer cancel()

	var err error
	switch {
	case rec.Message != nil:
		err = h.archive.StoreMessage(ctx, rec.Message)
	case rec.Reaction != nil:
		err = h.archive.StoreReaction(ctx, rec.Reaction)
	}
	if err != nil {
		log.Printf("Failed to archive record: %v", err)
	}
}
