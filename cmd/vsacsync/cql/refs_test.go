package cql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefsSetKeepsFirstPosition(t *testing.T) {
	r := NewRefs()
	r.Set("a", "1")
	r.Set("b", "2")
	r.Set("a", "3")

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []Reference{{Name: "a", Value: "3"}, {Name: "b", Value: "2"}}, r.References())
}

func TestRefsZeroAndNil(t *testing.T) {
	var zero Refs
	zero.Set("a", "1")
	v, ok := zero.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	var nilRefs *Refs
	assert.Equal(t, 0, nilRefs.Len())
	assert.Nil(t, nilRefs.References())
	assert.Empty(t, nilRefs.Map())
	_, ok = nilRefs.Get("a")
	assert.False(t, ok)

	r := NewRefs()
	r.Merge(nil)
	assert.Equal(t, 0, r.Len())
}
