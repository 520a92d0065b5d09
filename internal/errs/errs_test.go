package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrapped(t *testing.T) {
	base := NewParseError("a/models.py", 3, errors.New("unexpected indent"))
	wrapped := fmt.Errorf("extract: %w", base)

	assert.Equal(t, KindParse, KindOf(wrapped))
	assert.False(t, IsFatal(wrapped))
	assert.Equal(t, "a/models.py", ToRecord(wrapped).Subject)
}

func TestStoreIOErrorRetryable(t *testing.T) {
	err := fmt.Errorf("flush: %w", NewStoreIOError("upsert_node", true, errors.New("database is locked")))

	assert.True(t, IsRetryable(err))
	assert.True(t, IsFatal(err))

	perm := NewStoreIOError("open", false, errors.New("no such file"))
	assert.False(t, IsRetryable(perm))
}

func TestCycleErrorMessage(t *testing.T) {
	err := NewCycleError("INHERITS", []string{"a", "b", "a"})
	assert.Equal(t, "INHERITS cycle: a -> b -> a", err.Error())
	assert.Equal(t, KindCycle, KindOf(err))
	assert.False(t, IsFatal(err))
}

func TestForeignErrorIsFatal(t *testing.T) {
	assert.True(t, IsFatal(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
}
