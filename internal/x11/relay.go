package x11

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Relay accepts TCP connections and forwards each one to an upstream
// display.
type Relay struct {
	Dial   func(ctx context.Context) (net.Conn, error)
	Logger hclog.Logger

	listener net.Listener
	cancel   context.CancelFunc
	done     chan struct{}

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// Start listens on addr and serves in the background until Close.
func (r *Relay) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	r.listener = ln
	r.conns = make(map[net.Conn]struct{})
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		r.acceptLoop(ctx)
	}()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	r.Logger.Debug("x11 relay listening", "addr", ln.Addr().String())
	return nil
}

// Addr is the bound listener address.
func (r *Relay) Addr() net.Addr {
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Close stops accepting, drops open connections and waits for the
// forwarding goroutines.
func (r *Relay) Close() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (r *Relay) acceptLoop(ctx context.Context) {
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				r.mu.Lock()
				for c := range r.conns {
					c.Close()
				}
				r.mu.Unlock()
				r.wg.Wait()
				return
			}
			r.Logger.Warn("x11 relay accept failed", "error", err)
			continue
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.forward(ctx, conn)
		}()
	}
}

func (r *Relay) track(c net.Conn, add bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if add {
		r.conns[c] = struct{}{}
	} else {
		delete(r.conns, c)
	}
}

func (r *Relay) forward(ctx context.Context, client net.Conn) {
	defer client.Close()
	r.track(client, true)
	defer r.track(client, false)
	if ctx.Err() != nil {
		return
	}

	upstream, err := r.Dial(ctx)
	if err != nil {
		r.Logger.Warn("cannot reach X server", "error", err)
		return
	}
	defer upstream.Close()
	r.track(upstream, true)
	defer r.track(upstream, false)
	if ctx.Err() != nil {
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	pipe := func(dst, src net.Conn) {
		defer wg.Done()
		io.Copy(dst, src)
		if cw, ok := dst.(interface{ CloseWrite() error }); ok {
			cw.CloseWrite()
		}
	}
	go pipe(upstream, client)
	go pipe(client, upstream)
	wg.Wait()
}
