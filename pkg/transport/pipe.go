package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/morezero/designer-bridge/pkg/commsutil"
	"github.com/morezero/designer-bridge/pkg/protocol"
)

const pipeLogPrefix = "transport:pipe"

// Pipe is one end of an in-memory transport. Frames go through the wire
// codec so both ends see exactly what a network peer would send.
type Pipe struct {
	peer *Pipe

	mu        sync.Mutex
	inbox     [][]byte
	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	listening bool
}

// NewPipe returns two connected ends.
func NewPipe() (*Pipe, *Pipe) {
	a := &Pipe{wake: make(chan struct{}, 1), done: make(chan struct{})}
	b := &Pipe{wake: make(chan struct{}, 1), done: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

// Send encodes env and queues it on the peer. Frames queued before the peer
// listens are delivered once it does.
func (p *Pipe) Send(ctx context.Context, env *protocol.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	data, err := commsutil.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	return p.peer.enqueue(data)
}

func (p *Pipe) enqueue(data []byte) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	p.mu.Lock()
	p.inbox = append(p.inbox, data)
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// Listen starts a goroutine delivering queued frames to fn in order.
func (p *Pipe) Listen(fn Receiver) error {
	p.mu.Lock()
	if p.listening {
		p.mu.Unlock()
		return errors.New("transport: already listening")
	}
	p.listening = true
	p.mu.Unlock()

	go func() {
		for {
			p.mu.Lock()
			batch := p.inbox
			p.inbox = nil
			p.mu.Unlock()

			for _, data := range batch {
				deliverFrame(pipeLogPrefix, data, fn)
			}

			select {
			case <-p.done:
				return
			case <-p.wake:
			}
		}
	}()
	return nil
}

// Close stops delivery on this end.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}
