package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleCreator.Valid())
	assert.True(t, RoleConsumer.Valid())
	assert.False(t, Role("admin").Valid())
	assert.False(t, Role("").Valid())
}

func TestRoleOrDefault(t *testing.T) {
	assert.Equal(t, RoleCreator, RoleCreator.OrDefault())
	assert.Equal(t, RoleConsumer, Role("").OrDefault())
	assert.Equal(t, RoleConsumer, Role("Creator").OrDefault())
}
