package controller

import (
	"context"
	"fmt"
	"sync"

	"github.com/lsst/qserv-replica/pkg/config"
	"github.com/lsst/qserv-replica/pkg/ctlerror"
	"github.com/lsst/qserv-replica/pkg/job"
	"github.com/lsst/qserv-replica/pkg/wire"
)

// connDialer is the controller's request-sending facility:
// one pooled *wire.Client per worker, re-dialed only when the
// configured endpoint changes.
type connDialer struct {
	store config.Store

	mu    sync.Mutex
	conns map[string]*pooledConn
}

type pooledConn struct {
	addr   string
	client *wire.Client
}

func newConnDialer(store config.Store) *connDialer {
	return &connDialer{store: store, conns: make(map[string]*pooledConn)}
}

// Dial returns a connection to worker's REPLICATION service, satisfying
// pkg/job.Dialer. *wire.Client already implements pkg/job.Conn.
func (d *connDialer) Dial(ctx context.Context, worker string) (job.Conn, error) {
	w, err := d.store.Worker(worker)
	if err != nil {
		return nil, err
	}
	addr := fmt.Sprintf("%s:%d", w.SvcHost, w.SvcPort)

	d.mu.Lock()
	if pc, ok := d.conns[worker]; ok && pc.addr == addr {
		d.mu.Unlock()
		return pc.client, nil
	}
	d.mu.Unlock()

	client, err := wire.Dial(ctx, addr, wire.DialOptions{})
	if err != nil {
		return nil, ctlerror.Wrap(ctlerror.Internal, err, "dial worker %q at %s", worker, addr)
	}

	d.mu.Lock()
	if old, ok := d.conns[worker]; ok {
		_ = old.client.Close()
	}
	d.conns[worker] = &pooledConn{addr: addr, client: client}
	d.mu.Unlock()
	return client, nil
}

func (d *connDialer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, pc := range d.conns {
		_ = pc.client.Close()
	}
	d.conns = make(map[string]*pooledConn)
}
