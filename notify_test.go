package census

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/ozanturksever/go-census/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNATSNotifier_Subject(t *testing.T) {
	n := NewNATSNotifier(nil, "")
	assert.Equal(t, "census.outcome.alert", n.Subject(OutcomeAlert))
	assert.Equal(t, "census.outcome.healthy", n.Subject(OutcomeHealthy))

	n = NewNATSNotifier(nil, "ops.census")
	assert.Equal(t, "ops.census.failure", n.Subject(OutcomeFailure))
}

func TestNATSNotifier_Notify(t *testing.T) {
	ns := testutil.StartNATS(t)
	nc := ns.Connect(t)

	sub, err := nc.SubscribeSync("census.outcome.alert")
	require.NoError(t, err)
	healthySub, err := nc.SubscribeSync("census.outcome.healthy")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	adv := populatedAdvertiser(t)
	cycle, err := NewCycle(historicalConfig(), adv)
	require.NoError(t, err)
	out := cycle.Run(context.Background())
	require.Equal(t, OutcomeAlert, out.Kind)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	notifier := NewNATSNotifier(ns.Connect(t), DefaultNotifySubject)
	require.NoError(t, notifier.Notify(ctx, out))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "alert", msg.Header.Get("Census-Outcome"))
	assert.Equal(t, "Node census alert: Too many nodes in state acceptdonation: 60", msg.Header.Get("Census-Subject"))

	var payload struct {
		Kind   string `json:"kind"`
		Report Report `json:"report"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, "alert", payload.Kind)
	assert.Equal(t, 395, payload.Report.Total())

	_, err = healthySub.NextMsg(100 * time.Millisecond)
	assert.ErrorIs(t, err, nats.ErrTimeout)
}

func TestNATSNotifier_ClosedConnection(t *testing.T) {
	ns := testutil.StartNATS(t)
	nc := ns.Connect(t)
	nc.Close()

	notifier := NewNATSNotifier(nc, "")
	err := notifier.Notify(context.Background(), Outcome{Kind: OutcomeHealthy})
	assert.Error(t, err)
}
