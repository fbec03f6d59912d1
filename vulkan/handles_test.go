package vulkan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/andewx/vkframe/driver"
)

func TestTableNeverReusesHandles(t *testing.T) {
	var tab table[driver.Fence, string]
	a := tab.add("a")
	b := tab.add("b")
	assert.NotZero(t, a)
	assert.NotEqual(t, a, b)

	v, ok := tab.remove(a)
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = tab.get(a)
	assert.False(t, ok)
	assert.Equal(t, "", tab.lookup(a))

	c := tab.add("c")
	assert.NotEqual(t, a, c)
	assert.Equal(t, 2, tab.len())
}
