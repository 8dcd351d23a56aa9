package advertise

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ozanturksever/go-census/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulti_LookupUnionsReplicas(t *testing.T) {
	ctx := context.Background()
	a := testutil.NewFakeAdvertiser()
	b := testutil.NewFakeAdvertiser()

	require.NoError(t, a.Announce(ctx, "k", "node-1", time.Minute))
	require.NoError(t, a.Announce(ctx, "k", "node-2", time.Minute))
	require.NoError(t, b.Announce(ctx, "k", "node-2", time.Minute))
	require.NoError(t, b.Announce(ctx, "k", "node-3", time.Minute))

	values, err := NewMulti(a, b).Lookup(ctx, "k", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"node-1", "node-2", "node-3"}, values)
}

func TestMulti_LookupCapsUnion(t *testing.T) {
	ctx := context.Background()
	a := testutil.NewFakeAdvertiser()
	b := testutil.NewFakeAdvertiser()
	a.Populate("k", 3)
	for _, v := range []string{"extra-1", "extra-2", "extra-3"} {
		require.NoError(t, b.Announce(ctx, "k", v, time.Minute))
	}

	values, err := NewMulti(a, b).Lookup(ctx, "k", 4)
	require.NoError(t, err)
	assert.Len(t, values, 4)
}

func TestMulti_ReplicaFailureFailsLookup(t *testing.T) {
	ctx := context.Background()
	a := testutil.NewFakeAdvertiser()
	b := testutil.NewFakeAdvertiser()
	a.Populate("k", 3)
	boom := errors.New("replica unreachable")
	b.FailLookup("k", boom)

	values, err := NewMulti(a, b).Lookup(ctx, "k", 100)
	assert.Nil(t, values)
	var lf *LookupFailure
	require.ErrorAs(t, err, &lf)
	assert.ErrorIs(t, err, boom)
}

func TestMulti_NoReplicas(t *testing.T) {
	_, err := NewMulti().Lookup(context.Background(), "k", 10)
	var lf *LookupFailure
	assert.ErrorAs(t, err, &lf)

	err = NewMulti().Announce(context.Background(), "k", "v", time.Minute)
	var af *AnnounceFailure
	assert.ErrorAs(t, err, &af)
}

func TestMulti_AnnounceReachesEveryReplica(t *testing.T) {
	ctx := context.Background()
	a := testutil.NewFakeAdvertiser()
	b := testutil.NewFakeAdvertiser()

	require.NoError(t, NewMulti(a, b).Announce(ctx, "k", "node-1", time.Minute))

	for _, replica := range []*testutil.FakeAdvertiser{a, b} {
		values, err := replica.Lookup(ctx, "k", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"node-1"}, values)
	}
}

func TestMulti_AnnounceFailure(t *testing.T) {
	a := testutil.NewFakeAdvertiser()
	b := testutil.NewFakeAdvertiser()
	b.FailAnnounce(errors.New("read-only"))

	err := NewMulti(a, b).Announce(context.Background(), "k", "node-1", time.Minute)
	var af *AnnounceFailure
	require.ErrorAs(t, err, &af)
	assert.Equal(t, "k", af.Key)
}

func TestMulti_OverNATSReplicas(t *testing.T) {
	replicas := testutil.StartNATSReplicas(t, 2)
	require.NoError(t, replicas.WaitForReady(5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clients := make([]Client, 0, 2)
	for _, url := range replicas.URLs() {
		c := NewNATS(NATSConfig{NATSURLs: []string{url}})
		require.NoError(t, c.Connect(ctx))
		t.Cleanup(c.Close)
		clients = append(clients, c)
	}

	require.NoError(t, clients[0].Announce(ctx, "k", "node-a", time.Minute))
	require.NoError(t, clients[1].Announce(ctx, "k", "node-b", time.Minute))

	values, err := NewMulti(clients...).Lookup(ctx, "k", 100)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"node-a", "node-b"}, values)

	replicas.Partition(1)

	lookupCtx, lookupCancel := context.WithTimeout(ctx, 2*time.Second)
	defer lookupCancel()
	_, err = NewMulti(clients...).Lookup(lookupCtx, "k", 100)
	var lf *LookupFailure
	assert.ErrorAs(t, err, &lf)
}
