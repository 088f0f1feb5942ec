package result

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResultKeepsKey(t *testing.T) {
	r := New(KindValue, "doc-1")
	assert.Equal(t, "doc-1", r.Key())
	assert.Equal(t, KindValue, r.Kind)
	assert.Nil(t, r.Fields)
	assert.True(t, r.Success())
	assert.NoError(t, r.Err())
}

func TestNewItemHasFields(t *testing.T) {
	item := NewItem("item", map[string]any{"a": 1})
	require.NotNil(t, item.Fields)
	item.Fields["owner"] = "me"
	assert.Equal(t, KindItem, item.Kind)
	assert.Equal(t, map[string]any{"a": 1}, item.Value)
}

func TestResultErr(t *testing.T) {
	r := New(KindOperation, "k")
	r.Status = StatusKeyExists

	err := r.Err()
	require.Error(t, err)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, StatusKeyExists, e.Status)
	assert.Equal(t, "k", e.Key)
	assert.Contains(t, err.Error(), "KeyExists")
	assert.Equal(t, StatusKeyExists.Description(), r.ErrString())
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"nil", nil, StatusSuccess},
		{"plain", errors.New("boom"), StatusInternalError},
		{"typed", NewError(StatusTimeout, "slow"), StatusTimeout},
		{"wrapped", fmt.Errorf("scheduling: %w", NewError(StatusDurabilityTooMany, "")), StatusDurabilityTooMany},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestStatusStrings(t *testing.T) {
	for s := StatusSuccess; s <= StatusUnknownCommand; s++ {
		assert.NotContains(t, s.String(), "Status(", "missing name for %d", s)
		assert.NotEqual(t, "unknown status", s.Description())
	}
	assert.Equal(t, "Status(999)", Status(999).String())
}

func TestObserveInfoAccessor(t *testing.T) {
	r := New(KindValue, "k")
	assert.Nil(t, r.ObserveInfo())

	r.Value = []ObserveInfo{{FromMaster: true, State: KeyStatePersisted, Cas: 7}}
	infos := r.ObserveInfo()
	require.Len(t, infos, 1)
	assert.True(t, infos[0].FromMaster)
	assert.Contains(t, infos[0].String(), "persisted")
}

func TestResultString(t *testing.T) {
	r := New(KindValue, "k")
	r.Cas = 0x2A
	r.Value = "v"
	assert.Equal(t, `ValueResult<rc=0x0, key="k", cas=0x2A, value=v>`, r.String())

	r.Status = StatusKeyNotFound
	r.Value = nil
	assert.Equal(t, `ValueResult<rc=0x1, key="k", err=KeyNotFound>`, r.String())
}
