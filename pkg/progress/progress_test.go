package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigflow/sigflow/pkg/signal"
)

func TestReporter_SetProgressClampsAndNotifiesOnChange(t *testing.T) {
	r := NewReporter()

	var events []float32
	r.OnProgressChanged().ConnectWithType(func(p float32) {
		events = append(events, p)
	}, signal.Direct)

	r.SetProgress(0.5)
	r.SetProgress(0.5) // no change, no event
	r.SetProgress(2.0) // clamps to 1
	r.SetProgress(-3)  // clamps to 0

	assert.Equal(t, []float32{0.5, 1, 0}, events)
	assert.Equal(t, float32(0), r.Progress())
}

func TestReporter_Update(t *testing.T) {
	r := NewReporter()

	var updates []State
	r.OnUpdated().ConnectWithType(func(s State) {
		updates = append(updates, s)
	}, signal.Direct)

	r.Update(0.25, "downloading")
	r.Update(0.25, "downloading") // nothing changed
	r.Update(0.25, "verifying")   // message only
	r.Update(0.5, "verifying")    // progress only

	require.Len(t, updates, 3)
	assert.Equal(t, State{Progress: 0.25, Message: "downloading"}, updates[0])
	assert.Equal(t, State{Progress: 0.25, Message: "verifying"}, updates[1])
	assert.Equal(t, State{Progress: 0.5, Message: "verifying"}, updates[2])

	msg, ok := r.Message()
	assert.True(t, ok)
	assert.Equal(t, "verifying", msg)
}

func TestReporter_OnMessageChanged(t *testing.T) {
	r := NewReporter()

	var msgs []string
	r.OnMessageChanged().ConnectWithType(func(m string) {
		msgs = append(msgs, m)
	}, signal.Direct)

	r.SetMessage("downloading")
	r.SetMessage("downloading") // unchanged, silent
	r.Update(0.5, "verifying")
	r.SetProgress(0.75) // progress only, silent

	assert.Equal(t, []string{"downloading", "verifying"}, msgs)
}

func TestReporter_Reset(t *testing.T) {
	r := NewReporter()
	r.Update(0.9, "nearly there")

	r.Reset()

	assert.Equal(t, float32(0), r.Progress())
	_, ok := r.Message()
	assert.False(t, ok)
}

func TestAggregate_WeightedMean(t *testing.T) {
	agg := NewAggregate()

	download := agg.AddTask("download", 3)
	process := agg.AddTask("process", 1)
	require.Equal(t, 2, agg.TaskCount())

	download.SetProgress(1)
	assert.InDelta(t, 0.75, agg.Progress(), 1e-6)

	process.SetProgress(1)
	assert.InDelta(t, 1.0, agg.Progress(), 1e-6)
}

func TestAggregate_EmitsOnEverySubChange(t *testing.T) {
	agg := NewAggregate()

	var events []float32
	agg.OnProgressChanged().ConnectWithType(func(p float32) {
		events = append(events, p)
	}, signal.Direct)

	a := agg.AddTask("a", 1)
	b := agg.AddTask("b", 1)

	a.SetProgress(0.5)
	b.SetProgress(0.5)

	// Two re-emissions from AddTask plus one per sub-task change.
	require.Len(t, events, 4)
	assert.InDelta(t, 0.25, events[2], 1e-6)
	assert.InDelta(t, 0.5, events[3], 1e-6)
}

func TestAggregate_Reset(t *testing.T) {
	agg := NewAggregate()
	a := agg.AddTask("a", 1)
	b := agg.AddTask("b", 1)
	a.SetProgress(1)
	b.SetProgress(1)
	require.InDelta(t, 1.0, agg.Progress(), 1e-6)

	agg.Reset()

	assert.Equal(t, float32(0), agg.Progress())
	assert.Equal(t, float32(0), a.Progress())
	assert.Equal(t, float32(0), b.Progress())
}

func TestAggregate_NonPositiveWeightDefaultsToOne(t *testing.T) {
	agg := NewAggregate()

	a := agg.AddTask("a", 0)
	agg.AddTask("b", 1)

	a.SetProgress(1)
	assert.InDelta(t, 0.5, agg.Progress(), 1e-6)
}

func TestAggregate_EmptyIsZero(t *testing.T) {
	agg := NewAggregate()
	assert.Equal(t, float32(0), agg.Progress())
}
