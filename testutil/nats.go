// Package testutil provides testing utilities for go-census.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// NATSServer wraps an embedded NATS server for testing.
type NATSServer struct {
	server *server.Server
	url    string
}

// StartNATS starts an embedded NATS server with JetStream enabled. The server
// is shut down when the test finishes.
func StartNATS(t *testing.T) *NATSServer {
	t.Helper()

	opts := &server.Options{
		Host:               "127.0.0.1",
		Port:               -1, // Random port
		NoLog:              true,
		NoSigs:             true,
		JetStream:          true,
		StoreDir:           t.TempDir(),
		JetStreamMaxMemory: 64 * 1024 * 1024,
		JetStreamMaxStore:  256 * 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("failed to create NATS server: %v", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	s := &NATSServer{
		server: ns,
		url:    ns.ClientURL(),
	}
	t.Cleanup(s.Stop)
	return s
}

// URL returns the NATS server URL.
func (n *NATSServer) URL() string {
	return n.url
}

// Stop stops the NATS server. Safe to call more than once.
func (n *NATSServer) Stop() {
	if n.server != nil {
		n.server.Shutdown()
		n.server.WaitForShutdown()
	}
}

// Connect creates a new NATS connection to the test server.
func (n *NATSServer) Connect(t *testing.T) *nats.Conn {
	t.Helper()

	nc, err := nats.Connect(n.url)
	if err != nil {
		t.Fatalf("failed to connect to NATS: %v", err)
	}

	t.Cleanup(func() {
		nc.Close()
	})

	return nc
}

// NATSReplicas is a set of independent NATS servers, each standing in for one
// replica of a replicated advertisement substrate.
type NATSReplicas struct {
	servers []*NATSServer
}

// StartNATSReplicas starts n independent NATS servers.
func StartNATSReplicas(t *testing.T, n int) *NATSReplicas {
	t.Helper()

	if n < 1 {
		n = 1
	}

	r := &NATSReplicas{servers: make([]*NATSServer, n)}
	for i := 0; i < n; i++ {
		r.servers[i] = StartNATS(t)
	}
	return r
}

// URLs returns all server URLs.
func (r *NATSReplicas) URLs() []string {
	urls := make([]string, len(r.servers))
	for i, ns := range r.servers {
		urls[i] = ns.URL()
	}
	return urls
}

// Server returns the i-th replica.
func (r *NATSReplicas) Server(i int) *NATSServer {
	return r.servers[i]
}

// Partition simulates a replica outage by stopping its server.
func (r *NATSReplicas) Partition(i int) {
	if i >= 0 && i < len(r.servers) {
		r.servers[i].Stop()
	}
}

// WaitForReady waits for all servers to be ready.
func (r *NATSReplicas) WaitForReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		allReady := true
		for _, ns := range r.servers {
			if ns.server == nil || !ns.server.ReadyForConnections(100*time.Millisecond) {
				allReady = false
				break
			}
		}
		if allReady {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("replicas not ready within %v", timeout)
}
