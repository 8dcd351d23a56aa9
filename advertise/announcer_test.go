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

func TestNewAnnouncerDefaults(t *testing.T) {
	a := NewAnnouncer(testutil.NewFakeAdvertiser(), "k", "v", 30*time.Second)
	assert.Equal(t, 10*time.Second, a.interval)
	assert.Equal(t, 10*time.Second, a.timeout)

	a = NewAnnouncer(testutil.NewFakeAdvertiser(), "k", "v", time.Minute,
		WithInterval(5*time.Second), WithAnnounceTimeout(time.Second))
	assert.Equal(t, 5*time.Second, a.interval)
	assert.Equal(t, time.Second, a.timeout)
}

func TestAnnouncer_KeepsValueAdvertised(t *testing.T) {
	fake := testutil.NewFakeAdvertiser()
	a := NewAnnouncer(fake, "k", "node-1", time.Second, WithInterval(20*time.Millisecond))

	a.Start(context.Background())
	defer a.Stop()

	require.Eventually(t, func() bool {
		return a.Successes() >= 3
	}, 2*time.Second, 10*time.Millisecond)

	values, err := fake.Lookup(context.Background(), "k", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"node-1"}, values)
	assert.Zero(t, a.Failures())
}

func TestAnnouncer_FailuresAreRetried(t *testing.T) {
	fake := testutil.NewFakeAdvertiser()
	fake.FailAnnounce(errors.New("substrate down"))
	a := NewAnnouncer(fake, "k", "node-1", time.Second, WithInterval(20*time.Millisecond))

	a.Start(context.Background())
	defer a.Stop()

	require.Eventually(t, func() bool {
		return a.Failures() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	fake.FailAnnounce(nil)
	require.Eventually(t, func() bool {
		return a.Successes() >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAnnouncer_StopIsIdempotent(t *testing.T) {
	a := NewAnnouncer(testutil.NewFakeAdvertiser(), "k", "v", time.Second)
	a.Stop()

	a.Start(context.Background())
	a.Start(context.Background())
	a.Stop()
	a.Stop()
}

func TestAnnouncer_StartStopLoop(t *testing.T) {
	fake := testutil.NewFakeAdvertiser()
	for i := 0; i < 2000; i++ {
		a := NewAnnouncer(fake, "k", "v", time.Second)
		a.Start(context.Background())
		a.Stop()
	}
}
