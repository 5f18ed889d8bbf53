package notify

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterNotifier_Notify(t *testing.T) {
	var buf bytes.Buffer
	n := NewWriterNotifier(&buf)
	n.now = func() time.Time { return time.Date(2024, 12, 7, 21, 4, 5, 0, time.UTC) }

	err := n.Notify(context.Background(), Notification{Title: "New Emergency Alert", Body: "Fire: smoke at gate"})
	require.NoError(t, err)
	assert.Equal(t, "\n[21:04:05] New Emergency Alert: Fire: smoke at gate\n", buf.String())
}

func TestWriterNotifier_CanceledContext(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewWriterNotifier(&buf).Notify(ctx, Notification{Title: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())
}
