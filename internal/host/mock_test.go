package host

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthenticator struct {
	enabled bool
	err     error
	// submitFails simulates the scheduler rejecting the job (e.g. not
	// running), in which case callback is never invoked.
	submitFails bool
}

func (f fakeAuthenticator) AuthEnabled() bool { return f.enabled }

func (f fakeAuthenticator) AuthAsync(_, _ string, callback func(error)) bool {
	if f.submitFails {
		return false
	}

	go callback(f.err)

	return true
}

func TestAuthenticate_Disabled(t *testing.T) {
	h := NewMockHost()
	token := NewMockToken()

	verdict := Authenticate(h, fakeAuthenticator{enabled: false}, token, "alice", "pw")

	assert.Equal(t, VerdictNotHandled, verdict)
	assert.False(t, h.IsPromoted("alice"))
}

func TestAuthenticate_Success(t *testing.T) {
	h := NewMockHost()
	token := NewMockToken()

	verdict := Authenticate(h, fakeAuthenticator{enabled: true}, token, "alice", "correcthorse")
	require.Equal(t, VerdictHandledPending, verdict)

	token.Wait()

	assert.NoError(t, token.Err)
	assert.Equal(t, "alice", token.Username)
	assert.True(t, h.IsPromoted("alice"))
	assert.Contains(t, h.InfoLogs(), "ldap bind succeeded")
}

func TestAuthenticate_BindFailure(t *testing.T) {
	h := NewMockHost()
	token := NewMockToken()
	bindErr := errors.New("invalid credentials")

	verdict := Authenticate(h, fakeAuthenticator{enabled: true, err: bindErr}, token, "alice", "wrongpw")
	require.Equal(t, VerdictHandledPending, verdict)

	token.Wait()

	assert.ErrorIs(t, token.Err, bindErr)
	assert.False(t, h.IsPromoted("alice"))
	assert.Contains(t, h.WarnLogs(), "ldap bind not handled")
}

func TestAuthenticate_SubmitFails(t *testing.T) {
	h := NewMockHost()
	token := NewMockToken()

	verdict := Authenticate(h, fakeAuthenticator{enabled: true, submitFails: true}, token, "alice", "pw")

	assert.Equal(t, VerdictNotHandled, verdict)
	assert.False(t, h.IsPromoted("alice"))
}

func TestMockToken_ReplyOnce(t *testing.T) {
	token := NewMockToken()

	token.Reply("alice", nil)
	token.Reply("bob", errors.New("should be ignored"))

	token.Wait()
	assert.Equal(t, "alice", token.Username)
	assert.NoError(t, token.Err)
}
