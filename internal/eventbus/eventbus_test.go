package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct{ n int }

type pong struct{}

func TestPublishSubscribe(t *testing.T) {
	Use(New())
	defer Use(nil)

	var got []int
	unsubscribe := Subscribe(func(_ context.Context, e ping) { got = append(got, e.n) })
	var pongs int
	Subscribe(func(context.Context, pong) { pongs++ })

	Publish(context.Background(), ping{1})
	Publish(context.Background(), pong{})
	unsubscribe()
	unsubscribe()
	Publish(context.Background(), ping{2})

	require.Equal(t, []int{1}, got)
	require.Equal(t, 1, pongs)
}

func TestUnsubscribeRemovesOnlyItsHandler(t *testing.T) {
	b := New()
	var a, c int
	ua := On(b, func(context.Context, ping) { a++ })
	On(b, func(context.Context, ping) { c++ })
	require.Equal(t, 2, Handlers[ping](b))

	ua()
	b.emit(context.Background(), typeOf[ping](), ping{})
	require.Equal(t, 0, a)
	require.Equal(t, 1, c)
	require.Equal(t, 1, Handlers[ping](b))
}

func TestDisabledBus(t *testing.T) {
	Use(nil)
	require.Nil(t, Current())
	unsubscribe := Subscribe(func(context.Context, ping) { t.Fatal("unexpected event") })
	Publish(context.Background(), ping{})
	unsubscribe()
	require.Zero(t, Handlers[ping](nil))
}
