package notification

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canal-compras/disputa/internal/domain/identity"
)

func TestNewNotification(t *testing.T) {
	at := time.Date(2026, 3, 2, 11, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	n := NewNotification(KindWinnerDeclared, PriorityHigh, "tender-1", "seq-42", "Vencedor declarado", "Lote 1", at)

	assert.Equal(t, KindWinnerDeclared, n.Kind)
	assert.Equal(t, "tender-1", n.TenderID)
	assert.Equal(t, time.UTC, n.CreatedAt.Location())
	assert.Nil(t, n.TargetUserID)

	again := NewNotification(KindWinnerDeclared, PriorityHigh, "tender-1", "seq-42", "outro", "", at)
	assert.Equal(t, n.NotificationID, again.NotificationID, "same dedupe key, same id")

	other := NewNotification(KindWinnerDeclared, PriorityHigh, "tender-2", "seq-42", "", "", at)
	assert.NotEqual(t, n.NotificationID, other.NotificationID)
}

func TestNotification_SetTarget(t *testing.T) {
	n := NewNotification(KindClassified, PriorityMedium, "tender-1", "seq-1", "", "", time.Now())
	user := "user-a"
	n.SetTarget(&user, nil)
	require.NotNil(t, n.TargetUserID)
	assert.Equal(t, "user-a", *n.TargetUserID)
	assert.Nil(t, n.TargetGroup)
}

func TestNewSSEClient(t *testing.T) {
	viewer := identity.Caller{UserID: "user-a", Role: identity.RoleSupplier}
	client := NewSSEClient("client-1", "tender-1", viewer)

	assert.Equal(t, "tender-1", client.TenderID)
	assert.Equal(t, viewer, client.Viewer)
	assert.False(t, client.ConnectedAt.IsZero())

	client.Close()
	assert.Panics(t, func() {
		client.MessageChan <- &SSEMessage{}
	})
}

func TestNewSSEMessage(t *testing.T) {
	data := json.RawMessage(`{"seq":7}`)
	msg := NewSSEMessage("7", "BID_ACCEPTED", data, time.Now())
	assert.Equal(t, "7", msg.ID)
	assert.Equal(t, "BID_ACCEPTED", msg.Event)
	assert.Equal(t, data, msg.Data)
	assert.Nil(t, msg.Retry)
}
