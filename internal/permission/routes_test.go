package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoutePermissions(t *testing.T) {
	codes, ok := RoutePermissions("/settings/permissions/")
	assert.True(t, ok)
	assert.Equal(t, []string{UsersView, UsersEdit}, codes)

	_, ok = RoutePermissions("/unknown")
	assert.False(t, ok)

	codes, ok = RoutePermissions("/")
	assert.True(t, ok)
	assert.Empty(t, codes)
}

func TestCanAccessRoute(t *testing.T) {
	granted := NewSet(UsersView, SalesView)

	assert.True(t, CanAccessRoute(granted, "/"))
	assert.True(t, CanAccessRoute(granted, "/sales/shipping"))
	assert.True(t, CanAccessRoute(Set{}, "/not-mapped"))
	assert.False(t, CanAccessRoute(granted, "/settings/permissions"))
	assert.False(t, CanAccessRoute(granted, "/settings/backup"))
	assert.True(t, CanAccessRoute(NewSet(Wildcard), "/settings/backup"))
}
