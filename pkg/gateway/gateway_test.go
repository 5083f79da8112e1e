package gateway

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhaopengme/hiperboot/pkg/actions"
	"github.com/zhaopengme/hiperboot/pkg/inbound"
	"github.com/zhaopengme/hiperboot/pkg/session"
	"github.com/zhaopengme/hiperboot/pkg/whatsapp/whatsapptest"
)

const (
	chatJID = "5511988887777@s.whatsapp.net"
	ownJID  = "5511900000000"
)

// openHolder returns a holder whose live session is open on client.
func openHolder(t *testing.T, client *whatsapptest.Client) *session.Holder {
	t.Helper()
	holder := session.NewHolder()
	sess := session.New(client)
	sess.SetOwnID(ownJID)
	sess.SetState(session.StateOpen)
	holder.Replace(sess)
	_, err := holder.Sender()
	require.NoError(t, err)
	return holder
}

func newExecutor(holder *session.Holder) *actions.Executor {
	return actions.NewExecutor(holder)
}

type fakeRelayer struct {
	batch []actions.Action
	err   error

	mu   sync.Mutex
	msgs []inbound.Message
}

func (r *fakeRelayer) Relay(ctx context.Context, msg inbound.Message) ([]actions.Action, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.batch, r.err
}

func (r *fakeRelayer) Messages() []inbound.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]inbound.Message(nil), r.msgs...)
}
