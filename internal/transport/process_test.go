package transport

import (
	"context"
	stderrors "errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lodeworks/toolbridge/internal/errors"
)

func TestProcessTransport_EchoRoundTrip(t *testing.T) {
	// cat echoes stdin to stdout line by line, which is exactly the framing
	// contract.
	tr := NewProcessTransport(slog.Default(), Config{Command: "cat"})

	ctx := context.Background()

	require.NoError(t, tr.Start(ctx))

	defer tr.Close()

	require.True(t, tr.IsReady())

	messages, errs := tr.ReadMessages(ctx)

	frame := []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	require.NoError(t, tr.SendMessage(ctx, frame))

	select {
	case got := <-messages:
		require.JSONEq(t, string(frame), string(got))

	case err := <-errs:
		t.Fatalf("unexpected transport error: %v", err)

	case <-time.After(5 * time.Second):
		t.Fatal("no frame received")
	}
}

func TestProcessTransport_StartUnknownCommand(t *testing.T) {
	tr := NewProcessTransport(slog.Default(), Config{Command: "definitely-not-a-real-binary-xyz"})

	err := tr.Start(context.Background())

	require.Error(t, err)
	require.Contains(t, err.Error(), "start process")
}

func TestProcessTransport_SendBeforeStart(t *testing.T) {
	tr := NewProcessTransport(slog.Default(), Config{Command: "cat"})

	err := tr.SendMessage(context.Background(), []byte(`{}`))

	require.ErrorIs(t, err, errors.ErrChannelClosed)
}

func TestProcessTransport_AbnormalExitReportsProcessError(t *testing.T) {
	tr := NewProcessTransport(slog.Default(), Config{
		Command: "sh",
		Args:    []string{"-c", "echo boom >&2; exit 3"},
	})

	ctx := context.Background()

	require.NoError(t, tr.Start(ctx))

	_, errs := tr.ReadMessages(ctx)

	select {
	case err := <-errs:
		var procErr *errors.ProcessError

		require.True(t, stderrors.As(err, &procErr))
		require.Equal(t, 3, procErr.ExitCode)
		require.Contains(t, procErr.Stderr, "boom")

	case <-time.After(5 * time.Second):
		t.Fatal("no process error reported")
	}
}

func TestProcessTransport_CloseSuppressesExitError(t *testing.T) {
	tr := NewProcessTransport(slog.Default(), Config{Command: "cat"})

	ctx := context.Background()

	require.NoError(t, tr.Start(ctx))

	messages, errs := tr.ReadMessages(ctx)

	require.NoError(t, tr.Close())

	// Intentional shutdown: the message channel closes without a terminal
	// process error.
	deadline := time.After(5 * time.Second)

	for {
		select {
		case _, ok := <-messages:
			if !ok {
				messages = nil
			}

		case err, ok := <-errs:
			if !ok {
				return
			}

			t.Fatalf("unexpected error after Close: %v", err)

		case <-deadline:
			t.Fatal("channels never closed")
		}
	}
}

func TestProcessTransport_CloseIdempotent(t *testing.T) {
	tr := NewProcessTransport(slog.Default(), Config{Command: "cat"})

	require.NoError(t, tr.Start(context.Background()))

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	require.False(t, tr.IsReady())
}

func TestProcessTransport_SendAfterClose(t *testing.T) {
	tr := NewProcessTransport(slog.Default(), Config{Command: "cat"})

	ctx := context.Background()

	require.NoError(t, tr.Start(ctx))
	require.NoError(t, tr.Close())

	err := tr.SendMessage(ctx, []byte(`{}`))

	require.ErrorIs(t, err, errors.ErrChannelClosed)
}
