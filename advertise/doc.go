// Package advertise provides clients for a distributed advertisement substrate:
// a replicated directory that maps a key to a set of values, each of which
// expires after its own time-to-live.
//
// Two backends are provided:
//
//   - [NATS]: values live in a NATS JetStream KV bucket
//   - [Etcd]: values live under an etcd prefix, attached to a lease
//
// [Multi] fans a lookup out to several substrates and unions the answers.
//
// # Usage
//
//	client := advertise.NewNATS(advertise.NATSConfig{
//	    NATSURLs: []string{"nats://localhost:4222"},
//	})
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Announce this node for one minute.
//	err := client.Announce(ctx, stateKey, "node-1:1224", time.Minute)
//
//	// Look up every node announced under the key.
//	nodes, err := client.Lookup(ctx, stateKey, 1024)
//
// # Key Layout
//
// Keys are arbitrary strings. They are encoded with unpadded base64url before
// being used as a KV token or etcd path segment, and values are addressed by
// the hex SHA-256 of the value, so the same value announced twice under the
// same key refreshes a single entry.
package advertise
