package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddID_CopiesName(t *testing.T) {
	r := AddID(Record{"name": "TEST-00001", "doctype": "Test"})
	assert.Equal(t, "TEST-00001", r["id"])
	assert.Equal(t, "TEST-00001", r["name"])
	assert.Equal(t, "Test", r["doctype"])
}

func TestAddID_WithoutName(t *testing.T) {
	r := AddID(Record{"foo": "bar"})
	_, ok := r["id"]
	assert.False(t, ok)
	assert.Nil(t, AddID(nil))
}

func TestAddIDs_NonNil(t *testing.T) {
	out := AddIDs(nil)
	assert.NotNil(t, out)
	assert.Len(t, out, 0)
}

func TestUniqueItems_PreservesOrder(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, UniqueItems([]string{"a", "b", "a", "c", "b"}))
	assert.Equal(t, []string{}, UniqueItems(nil))
}

func TestRemoveItem(t *testing.T) {
	in := []string{"name", "test", "name"}
	assert.Equal(t, []string{"test"}, RemoveItem(in, "name"))
	assert.Equal(t, []string{"name", "test", "name"}, in)
}

func TestListToObject(t *testing.T) {
	got := ListToObject([]KeyLabel{{Key: "x", Label: "y"}, {Key: "a", Label: "b"}})
	assert.Equal(t, map[string]string{"x": "y", "a": "b"}, got)

	got = ListToObject([]KeyLabel{{Key: "x", Label: "first"}, {Key: "x", Label: "second"}})
	assert.Equal(t, map[string]string{"x": "second"}, got)
}
