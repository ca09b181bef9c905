// Package p2p runs the libp2p host and the GossipSub topic that carries
// accepted submissions between instances.
package p2p

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/did-node/config"
	"github.com/d60-Lab/did-node/internal/metrics"
)

// Handler receives the payload of a message published by another peer.
type Handler func(data []byte, from peer.ID)

// Node is a libp2p host joined to a single gossip topic.
type Node struct {
	host    host.Host
	ps      *pubsub.PubSub
	topic   *pubsub.Topic
	limiter *rate.Limiter
	cfg     config.P2PConfig
	log     *zap.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mdns   mdns.Service

	closeOnce sync.Once
}

// New creates the host with the persisted identity in cfg.KeyDir and joins
// cfg.Topic. A failure to load or create the identity is returned as is;
// callers treat it as fatal.
func New(ctx context.Context, cfg config.P2PConfig, log *zap.Logger, m *metrics.Metrics) (*Node, error) {
	priv, err := LoadOrCreateIdentity(cfg.KeyDir)
	if err != nil {
		return nil, err
	}

	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(cfg.ListenAddr()),
	)
	if err != nil {
		return nil, fmt.Errorf("create libp2p host: %w", err)
	}

	nctx, cancel := context.WithCancel(ctx)
	ps, err := pubsub.NewGossipSub(nctx, h)
	if err != nil {
		cancel()
		_ = h.Close()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}
	topic, err := ps.Join(cfg.Topic)
	if err != nil {
		cancel()
		_ = h.Close()
		return nil, fmt.Errorf("join topic %s: %w", cfg.Topic, err)
	}

	rl := rate.Limit(cfg.PublishRate)
	if cfg.PublishRate <= 0 {
		rl = rate.Inf
	}
	n := &Node{
		host:    h,
		ps:      ps,
		topic:   topic,
		limiter: rate.NewLimiter(rl, max(cfg.PublishBurst, 1)),
		cfg:     cfg,
		log:     log.With(zap.String("peer", h.ID().String())),
		metrics: m,
		ctx:     nctx,
		cancel:  cancel,
	}
	n.log.Info("p2p host started", zap.Strings("addrs", n.Addrs()), zap.String("topic", cfg.Topic))
	return n, nil
}

// ID is the node's peer id.
func (n *Node) ID() peer.ID { return n.host.ID() }

// Addrs lists the dialable addresses including the /p2p component.
func (n *Node) Addrs() []string {
	addrs, err := peer.AddrInfoToP2pAddrs(&peer.AddrInfo{ID: n.host.ID(), Addrs: n.host.Addrs()})
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

// Peers returns the currently connected peers.
func (n *Node) Peers() []peer.ID { return n.host.Network().Peers() }

// Publish sends data to the topic. It waits for the publish limiter, so a
// burst of submissions slows down instead of failing.
func (n *Node) Publish(ctx context.Context, data []byte) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("publish rate limit: %w", err)
	}
	if err := n.topic.Publish(ctx, data); err != nil {
		return fmt.Errorf("publish to %s: %w", n.cfg.Topic, err)
	}
	return nil
}

// Subscribe starts delivering messages from other peers to handle. Our own
// messages are skipped.
func (n *Node) Subscribe(handle Handler) error {
	sub, err := n.topic.Subscribe()
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", n.cfg.Topic, err)
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer sub.Cancel()
		for {
			msg, err := sub.Next(n.ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					n.log.Warn("gossip subscription stopped", zap.Error(err))
				}
				return
			}
			if msg.ReceivedFrom == n.host.ID() {
				continue
			}
			n.metrics.Gossip("in", "received")
			handle(msg.Data, msg.GetFrom())
		}
	}()
	return nil
}

// Connect dials a peer given as a full multiaddr with a /p2p component.
func (n *Node) Connect(ctx context.Context, addr string) error {
	maddr, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("parse multiaddr %q: %w", addr, err)
	}
	pi, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return fmt.Errorf("peer info from %q: %w", addr, err)
	}
	if pi.ID == n.host.ID() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, n.cfg.DialTimeout)
	defer cancel()
	return n.host.Connect(ctx, *pi)
}

// Bootstrap dials the configured peers in parallel, retrying each with a
// growing pause. Failures are logged; the node keeps running alone.
func (n *Node) Bootstrap() {
	for _, addr := range n.cfg.BootstrapPeers {
		n.wg.Add(1)
		go func(addr string) {
			defer n.wg.Done()
			n.connectWithRetry(addr)
		}(addr)
	}
}

func (n *Node) connectWithRetry(addr string) {
	retries := max(n.cfg.DialRetries, 1)
	for attempt := 1; attempt <= retries; attempt++ {
		err := n.Connect(n.ctx, addr)
		if err == nil {
			n.log.Info("connected to bootstrap peer", zap.String("addr", addr), zap.Int("attempt", attempt))
			return
		}
		n.log.Warn("bootstrap dial failed", zap.String("addr", addr),
			zap.Int("attempt", attempt), zap.Int("retries", retries), zap.Error(err))
		if attempt == retries {
			return
		}
		select {
		case <-time.After(time.Duration(attempt*attempt) * time.Second):
		case <-n.ctx.Done():
			return
		}
	}
}

// StartMDNS announces the node on the local network.
func (n *Node) StartMDNS() error {
	svc := mdns.NewMdnsService(n.host, n.cfg.MDNSService, n)
	if err := svc.Start(); err != nil {
		return fmt.Errorf("start mdns: %w", err)
	}
	n.mdns = svc
	return nil
}

// HandlePeerFound implements mdns.Notifee.
func (n *Node) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == n.host.ID() {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(n.ctx, n.cfg.DialTimeout)
		defer cancel()
		if err := n.host.Connect(ctx, pi); err != nil {
			n.log.Debug("mdns peer dial failed", zap.String("remote", pi.ID.String()), zap.Error(err))
			return
		}
		n.log.Info("connected to mdns peer", zap.String("remote", pi.ID.String()))
	}()
}

// Close stops discovery, the subscription loop and the host.
func (n *Node) Close() error {
	var err error
	n.closeOnce.Do(func() {
		if n.mdns != nil {
			_ = n.mdns.Close()
		}
		n.cancel()
		n.wg.Wait()
		_ = n.topic.Close()
		err = n.host.Close()
	})
	return err
}
