package cfn

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ObjectInsertionOrder(t *testing.T) {
	assert := assert.New(t)

	o := NewObject()
	o.Set("b", 1)
	o.Set("a", 2)
	o.Set("c", 3)
	o.Set("a", 4) // overwrite keeps position

	assert.Equal([]string{"b", "a", "c"}, o.Keys())

	raw, err := json.Marshal(o)
	require.NoError(t, err)
	assert.Equal(`{"b":1,"a":4,"c":3}`, string(raw))
}

func Test_ObjectDelete(t *testing.T) {
	assert := assert.New(t)

	o := NewObject()
	o.Set("a", 1)
	o.Set("b", 2)
	o.Delete("a")
	o.Delete("missing")

	assert.Equal([]string{"b"}, o.Keys())
	assert.False(o.Has("a"))
	assert.Equal(1, o.Len())
}
