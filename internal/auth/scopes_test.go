package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllows(t *testing.T) {
	writer := &Claims{Subject: "bot", Scopes: map[string]struct{}{ScopeActivitiesWrite: {}}}
	require.True(t, Allows(writer, ScopeActivitiesWrite))
	require.True(t, Allows(writer, ScopeActivitiesRead))
	require.True(t, Allows(writer, ScopeProgressRead))
	require.False(t, Allows(writer, ScopeUsersWrite))

	reader := &Claims{Subject: "dashboard", Scopes: map[string]struct{}{ScopeProgressRead: {}}}
	require.False(t, Allows(reader, ScopeActivitiesRead))
	require.False(t, Allows(nil, ScopeProgressRead))
}
