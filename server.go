package miniredis

import (
	"context"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

const (
	// MaxConnections bounds how many handlers may run concurrently; the
	// (max+1)th dialer blocks in Accept's semaphore wait until one frees up.
	MaxConnections = 250

	// acceptBackoffMax is how many consecutive Accept failures are
	// tolerated, each slept off with doubling backoff, before the accept
	// loop gives up and surfaces a fatal error. Failures 1-6 sleep
	// 1,2,4,8,16,32s; the 7th failure is terminal rather than sleeping a
	// 7th (64s) delay, since invariant 9 fixes the terminal failure at 7
	// regardless of what its delay would have been.
	acceptBackoffMax = 6
)

// Listener owns the TCP socket, the shared store, the admission semaphore
// and the shutdown broadcast for one running server.
type Listener struct {
	ln       net.Listener
	dbGuard  *DbDropGuard
	sem      *semaphore.Weighted
	shutdown *shutdownSignal
	wg       sync.WaitGroup
	quiet    bool
}

// Handler drives one accepted connection until it errors, the client
// disconnects, or shutdown fires.
type Handler struct {
	db       Db
	conn     *Connection
	shutdown *Shutdown
	quiet    bool
	remote   string
}

// Run accepts connections on ln until ctx is done, then waits for every
// in-flight handler to finish and tears down the store's background purge
// task before returning. A nil return means an orderly shutdown; any other
// error is fatal (e.g. the accept loop gave up after repeated failures).
func Run(ctx context.Context, ln net.Listener, quiet bool) error {
	l := &Listener{
		ln:       ln,
		dbGuard:  NewDbDropGuard(),
		sem:      semaphore.NewWeighted(MaxConnections),
		shutdown: newShutdownSignal(),
		quiet:    quiet,
	}

	acceptErr := make(chan error, 1)
	go func() { acceptErr <- l.acceptLoop(ctx) }()

	var runErr error
	select {
	case runErr = <-acceptErr:
	case <-ctx.Done():
		// net.Listener.Accept ignores ctx; closing it is what actually
		// unblocks a pending Accept call so acceptLoop can return.
		l.ln.Close()
		runErr = <-acceptErr
	}

	// Signal 1: wake every handler's select loop.
	l.shutdown.trigger()
	// Signal 2: wait for every handler goroutine to actually finish.
	l.wg.Wait()
	// Signal 3: only now tear down the purge goroutine.
	l.dbGuard.Close()

	return runErr
}

func (l *Listener) acceptLoop(ctx context.Context) error {
	failures := 0
	for {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return nil
		}

		conn, err := l.ln.Accept()
		if err != nil {
			l.sem.Release(1)
			if ctx.Err() != nil {
				return nil
			}
			failures++
			if failures > acceptBackoffMax {
				return errors.Wrap(err, "accept: too many consecutive failures, giving up")
			}
			delay := time.Duration(1<<uint(failures-1)) * time.Second
			log.Printf("accept error (attempt %d of %d, retrying in %s): %v", failures, acceptBackoffMax, delay, err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		failures = 0

		h := &Handler{
			db:       l.dbGuard.Db(),
			conn:     NewConnection(conn),
			shutdown: l.shutdown.subscribe(),
			quiet:    l.quiet,
			remote:   conn.RemoteAddr().String(),
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer l.sem.Release(1)
			defer conn.Close()

			if !h.quiet {
				log.Println("connection opened:", h.remote)
			}
			if err := h.run(); err != nil {
				log.Printf("connection error (%s): %+v", h.remote, err)
			}
			if !h.quiet {
				log.Println("connection closed:", h.remote)
			}
		}()
	}
}

// run processes commands off the connection, one at a time, until the
// client disconnects, a protocol/IO error occurs, or shutdown fires.
func (h *Handler) run() error {
	for {
		if h.shutdown.IsShutdown() {
			return nil
		}

		frame, err := h.readFrameRacingShutdown()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, errHandlerShutdown) {
				return nil
			}
			return err
		}

		cmd, err := ParseCommand(frame)
		if err != nil {
			return err
		}

		ctx := &applyContext{db: h.db, conn: h.conn, shutdown: h.shutdown}
		if err := cmd.apply(ctx); err != nil {
			return err
		}
	}
}

// errHandlerShutdown is a private sentinel used only to unwind
// readFrameRacingShutdown's select; it never reaches a log line.
var errHandlerShutdown = errors.New("miniredis: handler shutdown")

// readFrameRacingShutdown races one frame read against the shutdown
// broadcast, matching the "select between read_frame and shutdown.recv"
// suspension point of the handler loop.
func (h *Handler) readFrameRacingShutdown() (Frame, error) {
	type result struct {
		frame Frame
		err   error
	}
	resCh := make(chan result, 1)
	go func() {
		f, err := h.conn.ReadFrame()
		resCh <- result{f, err}
	}()

	select {
	case res := <-resCh:
		return res.frame, res.err
	case <-h.shutdown.Done():
		return Frame{}, errHandlerShutdown
	}
}
