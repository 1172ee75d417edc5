package clocksync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shiftwise/clocksync/internal/netmon"
)

// State is the coordinator's coarse lifecycle phase, exposed for
// observability only. Transitions are driven entirely by drain passes.
type State string

const (
	StateIdle     State = "idle"
	StateDraining State = "draining"
	StateBackoff  State = "backoff"
)

// Config wires a Coordinator. Store, Gateway and Monitor are required;
// everything else has a default.
type Config struct {
	Store   QueueStore
	Gateway Gateway
	Monitor netmon.Monitor

	// BatchSize is the maximum number of operations drained per pass.
	// Default 10.
	BatchSize int

	// DrainInterval is the period of the background drain timer.
	// Default 30s.
	DrainInterval time.Duration

	// BaseBackoff is the delay after the first failed pass; it doubles
	// per consecutive failed pass up to MaxBackoff. Defaults 5s and 60s.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// MaxRetries is the number of attempts an operation gets before it
	// is dead-lettered. Default 3.
	MaxRetries int

	// CallTimeout bounds a single gateway call. Default 10s.
	CallTimeout time.Duration

	Clock  Clock
	Logger *log.Logger
}

func (cfg *Config) normalize() error {
	if cfg.Store == nil {
		return errors.New("clocksync: Config.Store is required")
	}
	if cfg.Gateway == nil {
		return errors.New("clocksync: Config.Gateway is required")
	}
	if cfg.Monitor == nil {
		return errors.New("clocksync: Config.Monitor is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = 30 * time.Second
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 5 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[clocksync] ", log.LstdFlags)
	}
	return nil
}

// Status is a point-in-time snapshot of the coordinator.
type Status struct {
	State                   State          `json:"state"`
	Online                  bool           `json:"online"`
	Quality                 netmon.Quality `json:"quality"`
	Pending                 int            `json:"pending"`
	Failed                  int            `json:"failed"`
	ConsecutiveFailedPasses int            `json:"consecutiveFailedPasses"`
	LastSyncAt              time.Time      `json:"lastSyncAt"`
	LastError               string         `json:"lastError,omitempty"`
}

// Coordinator owns the queue: producers hand it payloads via Enqueue and it
// replays them against the gateway, one drain pass at a time. At most one
// pass runs at any moment.
type Coordinator struct {
	cfg Config

	mu             sync.Mutex
	state          State
	draining       bool
	closed         bool
	failedPasses   int
	lastEnqueuedAt time.Time
	lastSyncAt     time.Time
	lastError      string
	backoffTimer   Timer
	periodicTimer  Timer

	sub    netmon.Subscription
	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds and starts a Coordinator. Stale processing records left by a
// previous run are reverted to pending before the first pass can pick
// anything up.
func New(cfg Config) (*Coordinator, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:    cfg,
		state:  StateIdle,
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	if err := c.recover(); err != nil {
		cancel()
		return nil, err
	}
	c.sub = cfg.Monitor.Subscribe(func(online bool) {
		if online {
			c.cfg.Logger.Printf("connectivity restored, requesting drain")
			c.Drain()
		}
	})
	c.wg.Add(1)
	go c.run()
	c.schedulePeriodic()
	if cfg.Monitor.IsOnline() {
		c.Drain()
	}
	return c, nil
}

// recover reverts operations stranded in processing by a crash so they are
// eligible for the next pass again.
func (c *Coordinator) recover() error {
	stale, err := c.cfg.Store.ListByStatus(StatusProcessing)
	if err != nil {
		return storageErr(err)
	}
	for _, op := range stale {
		op.Status = StatusPending
		if err := c.cfg.Store.Update(op); err != nil {
			return storageErr(err)
		}
	}
	if len(stale) > 0 {
		c.cfg.Logger.Printf("recovered %d in-flight operation(s) to pending", len(stale))
	}
	return nil
}

// Stop shuts the coordinator down. A pass already talking to the gateway is
// allowed to finish its current call and persist the outcome.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.periodicTimer != nil {
		c.periodicTimer.Stop()
	}
	if c.backoffTimer != nil {
		c.backoffTimer.Stop()
		c.backoffTimer = nil
	}
	c.mu.Unlock()

	c.sub.Unsubscribe()
	c.cancel()
	c.wg.Wait()
	return nil
}

// Enqueue validates and persists a new operation. Failures here are
// producer-visible; everything that happens during sync later is not.
// When the device is online the coordinator is woken immediately.
func (c *Coordinator) Enqueue(payload Payload, organizationID string) (Operation, error) {
	if payload == nil {
		return Operation{}, fmt.Errorf("%w: nil payload", ErrInvalidInput)
	}
	if err := ValidatePayload(payload); err != nil {
		return Operation{}, err
	}
	op := Operation{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		EnqueuedAt:     c.nextEnqueueTime(),
		Status:         StatusPending,
		Payload:        payload,
	}
	if err := c.cfg.Store.Enqueue(op); err != nil {
		return Operation{}, storageErr(err)
	}
	if c.cfg.Monitor.IsOnline() {
		c.Drain()
	}
	return op, nil
}

// nextEnqueueTime returns a strictly increasing timestamp so two operations
// enqueued within the clock's resolution still order deterministically.
func (c *Coordinator) nextEnqueueTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.cfg.Clock.Now()
	if !now.After(c.lastEnqueuedAt) {
		now = c.lastEnqueuedAt.Add(time.Nanosecond)
	}
	c.lastEnqueuedAt = now
	return now
}

// Drain requests a pass. It never blocks; if a pass is already running or
// requested, the request coalesces with it.
func (c *Coordinator) Drain() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) PendingCount() (int, error) {
	n, err := c.cfg.Store.CountByStatus(StatusPending)
	if err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}

func (c *Coordinator) FailedCount() (int, error) {
	n, err := c.cfg.Store.CountByStatus(StatusFailed)
	if err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}

// ListFailed returns the dead-letter set, oldest first.
func (c *Coordinator) ListFailed() ([]Operation, error) {
	ops, err := c.cfg.Store.ListByStatus(StatusFailed)
	if err != nil {
		return nil, storageErr(err)
	}
	return ops, nil
}

// ClearFailed drops every dead-lettered operation and reports how many.
func (c *Coordinator) ClearFailed() (int, error) {
	n, err := c.cfg.Store.ClearByStatus(StatusFailed)
	if err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}

func (c *Coordinator) Status() Status {
	pending, _ := c.cfg.Store.CountByStatus(StatusPending)
	failed, _ := c.cfg.Store.CountByStatus(StatusFailed)
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:                   c.state,
		Online:                  c.cfg.Monitor.IsOnline(),
		Quality:                 c.cfg.Monitor.QualityClass(),
		Pending:                 pending,
		Failed:                  failed,
		ConsecutiveFailedPasses: c.failedPasses,
		LastSyncAt:              c.lastSyncAt,
		LastError:               c.lastError,
	}
}

func (c *Coordinator) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.wake:
			c.drainPass()
		}
	}
}

// drainPass runs one batch against the gateway and schedules backoff when
// the batch saw a retryable failure.
func (c *Coordinator) drainPass() {
	c.mu.Lock()
	if c.draining || c.closed || !c.cfg.Monitor.IsOnline() {
		c.mu.Unlock()
		return
	}
	c.draining = true
	c.state = StateDraining
	if c.backoffTimer != nil {
		c.backoffTimer.Stop()
		c.backoffTimer = nil
	}
	c.mu.Unlock()

	retryableSeen := c.runBatch()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.draining = false
	c.lastSyncAt = c.cfg.Clock.Now()
	if c.closed {
		c.state = StateIdle
		return
	}
	if retryableSeen {
		delay := c.backoffDelayLocked()
		c.failedPasses++
		c.state = StateBackoff
		c.backoffTimer = c.cfg.Clock.AfterFunc(delay, c.Drain)
		c.cfg.Logger.Printf("drain pass failed (%d consecutive), backing off %s", c.failedPasses, delay)
	} else {
		c.failedPasses = 0
		c.state = StateIdle
		c.lastError = ""
		// Queues deeper than one batch keep draining without waiting for
		// the periodic timer.
		if n, err := c.cfg.Store.CountByStatus(StatusPending); err == nil && n > 0 {
			c.Drain()
		}
	}
}

// backoffDelayLocked doubles per consecutive failed pass: 5s, 10s, 20s,
// 40s, then caps at 60s.
func (c *Coordinator) backoffDelayLocked() time.Duration {
	delay := c.cfg.BaseBackoff << uint(c.failedPasses)
	if delay <= 0 || delay > c.cfg.MaxBackoff {
		delay = c.cfg.MaxBackoff
	}
	return delay
}

// runBatch processes up to BatchSize pending operations in enqueue order.
// When an operation fails retryably, later operations for the same entity
// are skipped so they cannot land out of order.
func (c *Coordinator) runBatch() (retryableSeen bool) {
	pending, err := c.cfg.Store.ListByStatus(StatusPending)
	if err != nil {
		c.setLastError(storageErr(err))
		return true
	}
	if len(pending) > c.cfg.BatchSize {
		pending = pending[:c.cfg.BatchSize]
	}
	blocked := make(map[string]bool)
	for _, op := range pending {
		if c.ctx.Err() != nil || !c.cfg.Monitor.IsOnline() {
			break
		}
		if blocked[op.EntityKey()] {
			continue
		}
		if c.processOne(op) {
			retryableSeen = true
			blocked[op.EntityKey()] = true
		}
	}
	return retryableSeen
}

// processOne pushes a single operation through the gateway and persists the
// outcome. It reports whether the failure, if any, was retryable.
func (c *Coordinator) processOne(op Operation) (retryable bool) {
	if op.RetryCount >= c.cfg.MaxRetries {
		c.deadLetter(op, errors.New("retry limit reached"))
		return false
	}
	op.Status = StatusProcessing
	if err := c.cfg.Store.Update(op); err != nil {
		c.setLastError(storageErr(err))
		return true
	}

	_, err := c.apply(op)
	if err == nil {
		c.complete(op)
		return false
	}

	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return c.retryResolved(op, conflict.Remote)
	}
	if Terminal(err) {
		c.deadLetter(op, err)
		return false
	}
	return c.requeue(op, err)
}

// retryResolved merges the remote's view into the payload and gives the
// operation exactly one more attempt. Whatever that attempt returns, the
// operation is done: success removes it, any error dead-letters it.
func (c *Coordinator) retryResolved(op Operation, remote RemoteRecord) bool {
	merged, err := Resolve(op.Payload, remote)
	if err != nil {
		c.deadLetter(op, err)
		return false
	}
	op.Payload = merged
	if err := c.cfg.Store.Update(op); err != nil {
		c.setLastError(storageErr(err))
		return true
	}
	if _, err := c.apply(op); err != nil {
		c.deadLetter(op, err)
		return false
	}
	c.complete(op)
	return false
}

// requeue records a retryable failure: the operation goes back to pending
// with its counter bumped, or to failed once the counter hits the limit.
func (c *Coordinator) requeue(op Operation, cause error) bool {
	op.RetryCount++
	op.LastError = cause.Error()
	if op.RetryCount >= c.cfg.MaxRetries {
		op.Status = StatusFailed
		c.cfg.Logger.Printf("operation %s (%s) exhausted retries: %v", op.ID, op.Kind(), cause)
	} else {
		op.Status = StatusPending
	}
	if err := c.cfg.Store.Update(op); err != nil {
		c.setLastError(storageErr(err))
	}
	c.setLastError(cause)
	return true
}

func (c *Coordinator) deadLetter(op Operation, cause error) {
	op.Status = StatusFailed
	op.LastError = cause.Error()
	if err := c.cfg.Store.Update(op); err != nil {
		c.setLastError(storageErr(err))
	}
	c.cfg.Logger.Printf("operation %s (%s) dead-lettered: %v", op.ID, op.Kind(), cause)
}

func (c *Coordinator) complete(op Operation) {
	if err := c.cfg.Store.Remove(op.ID); err != nil {
		c.setLastError(storageErr(err))
		return
	}
	c.cfg.Logger.Printf("operation %s (%s) applied", op.ID, op.Kind())
}

// apply calls the gateway under its own timeout, deliberately detached from
// the coordinator's context so Stop does not abort a call mid-flight.
func (c *Coordinator) apply(op Operation) (RemoteRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
	defer cancel()
	return c.cfg.Gateway.ApplyOperation(ctx, op)
}

func (c *Coordinator) schedulePeriodic() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.periodicTimer = c.cfg.Clock.AfterFunc(c.cfg.DrainInterval, func() {
		c.Drain()
		c.schedulePeriodic()
	})
}

func (c *Coordinator) setLastError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = err.Error()
}

func storageErr(err error) error {
	if errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
