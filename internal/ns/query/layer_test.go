package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoLayer is a minimal server-side layer: begins in Consume, echoes the
// incoming packet back verbatim, then terminates Done.
type echoLayer struct {
	response []byte
	finished bool
}

func (l *echoLayer) Begin(params any) State { return Consume }

func (l *echoLayer) Consume(pkt []byte) State {
	l.response = append([]byte(nil), pkt...)
	return Produce
}

func (l *echoLayer) Produce(buf []byte) (int, State) {
	n := copy(buf, l.response)
	return n, Done
}

func (l *echoLayer) Finish() { l.finished = true }

func TestDriveEchoLayerReturnsResponseOnDone(t *testing.T) {
	l := &echoLayer{}
	out, ok := Drive(l, nil, []byte("hello"), make([]byte, MaxMessageSize))
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), out)
	assert.True(t, l.finished)
}

// failThenProduceLayer simulates a FORMERR path: Consume immediately fails,
// but Produce still emits an error response before the terminal state.
type failThenProduceLayer struct {
	produced bool
}

func (l *failThenProduceLayer) Begin(params any) State { return Consume }

func (l *failThenProduceLayer) Consume(pkt []byte) State { return Fail }

func (l *failThenProduceLayer) Produce(buf []byte) (int, State) {
	l.produced = true
	n := copy(buf, []byte("FORMERR"))
	return n, Done
}

func (l *failThenProduceLayer) Finish() {}

func TestDriveProducesErrorResponseOnFail(t *testing.T) {
	l := &failThenProduceLayer{}
	out, ok := Drive(l, nil, []byte("garbage"), make([]byte, MaxMessageSize))
	require.True(t, ok)
	assert.True(t, l.produced)
	assert.Equal(t, []byte("FORMERR"), out)
}

// dropLayer simulates a silent drop (e.g. a parse failure before the header
// was even recovered): Consume returns Reset, which Drive's loop does not
// treat as Produce or Fail, so Produce never runs and nothing is shipped.
type dropLayer struct{}

func (l *dropLayer) Begin(params any) State   { return Consume }
func (l *dropLayer) Consume(pkt []byte) State { return Reset }
func (l *dropLayer) Produce(buf []byte) (int, State) {
	panic("Produce must not be called when Consume returns Reset")
}
func (l *dropLayer) Finish() {}

func TestDriveSkipsProduceOnReset(t *testing.T) {
	out, ok := Drive(&dropLayer{}, nil, []byte("garbage"), make([]byte, MaxMessageSize))
	assert.False(t, ok)
	assert.Nil(t, out)
}

// clientLayer simulates a client-side layer that begins in Produce (it must
// build the outbound request before anything is consumed).
type clientLayer struct {
	step int
}

func (l *clientLayer) Begin(params any) State { return Produce }

func (l *clientLayer) Consume(pkt []byte) State { return Done }

func (l *clientLayer) Produce(buf []byte) (int, State) {
	l.step++
	n := copy(buf, []byte("request"))
	return n, Done
}

func (l *clientLayer) Finish() {}

func TestDriveClientSideBeginsInProduce(t *testing.T) {
	l := &clientLayer{}
	out, ok := Drive(l, nil, nil, make([]byte, MaxMessageSize))
	require.True(t, ok)
	assert.Equal(t, []byte("request"), out)
	assert.Equal(t, 1, l.step)
}
