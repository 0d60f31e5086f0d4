package network

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/h3tag-core/consensus/logs"
)

var log, _ = logs.Get(logs.SubsystemTags.NETW)

// GRPCPeers is a reference Peers implementation: each candidate validator
// address is polled with the standard gRPC health-checking protocol
// (grpc.health.v1.Health/Check); an address counts as an active peer and
// a live validator iff it answers SERVING within the dial timeout. This
// keeps the consensus core's network collaborator real (genuine gRPC
// dial + protobuf health message) without inventing a bespoke wire
// protocol, which is explicitly out of scope (spec §1 Non-goals).
type GRPCPeers struct {
	mu          sync.RWMutex
	addresses   []string
	dialTimeout time.Duration
	syncState   SyncState
}

// NewGRPCPeers builds a GRPCPeers collaborator polling the given
// candidate validator addresses.
func NewGRPCPeers(addresses []string, dialTimeout time.Duration) *GRPCPeers {
	return &GRPCPeers{addresses: addresses, dialTimeout: dialTimeout, syncState: Synced}
}

// SetSyncState lets the embedding node report its own sync status; the
// consensus core never infers this itself (it is a Non-goal collaborator
// concern).
func (p *GRPCPeers) SetSyncState(s SyncState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.syncState = s
}

// PeerCount implements Peers by counting addresses that answer the health
// check.
func (p *GRPCPeers) PeerCount(ctx context.Context) (int, error) {
	live := p.liveAddresses(ctx)
	return len(live), nil
}

// ActiveValidators implements Peers, returning the subset of candidate
// addresses currently answering healthy.
func (p *GRPCPeers) ActiveValidators(ctx context.Context) ([]string, error) {
	return p.liveAddresses(ctx), nil
}

// SyncState implements Peers.
func (p *GRPCPeers) SyncState(ctx context.Context) (SyncState, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.syncState, nil
}

func (p *GRPCPeers) liveAddresses(ctx context.Context) []string {
	p.mu.RLock()
	addrs := append([]string(nil), p.addresses...)
	p.mu.RUnlock()

	var (
		mu   sync.Mutex
		live []string
		wg   sync.WaitGroup
	)
	for _, addr := range addrs {
		addr := addr
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.checkHealthy(ctx, addr) {
				mu.Lock()
				live = append(live, addr)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return live
}

func (p *GRPCPeers) checkHealthy(ctx context.Context, addr string) bool {
	dialCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock())
	if err != nil {
		log.Debugf("peer %s unreachable: %s", addr, err)
		return false
	}
	defer conn.Close()

	client := grpc_health_v1.NewHealthClient(conn)
	resp, err := client.Check(dialCtx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		log.Debugf("peer %s health check failed: %s", addr, err)
		return false
	}
	return resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING
}
