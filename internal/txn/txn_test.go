package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOp_Overlaps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b Op
		want bool
	}{
		{"intersecting ranges", Op{Start: 0, End: 10}, Op{Start: 5, End: 15}, true},
		{"adjacent ranges", Op{Start: 0, End: 10}, Op{Start: 10, End: 15}, false},
		{"nested range", Op{Start: 0, End: 10}, Op{Start: 2, End: 3}, true},
		{"two inserts same offset", Op{Start: 4, End: 4}, Op{Start: 4, End: 4}, false},
		{"insert at range start", Op{Start: 4, End: 4}, Op{Start: 4, End: 8}, false},
		{"insert at range end", Op{Start: 8, End: 8}, Op{Start: 4, End: 8}, false},
		{"insert inside range", Op{Start: 5, End: 5}, Op{Start: 4, End: 8}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a))
		})
	}
}

func TestManager_QueueRejectsOverlap(t *testing.T) {
	t.Parallel()

	m := NewManager()
	require.NoError(t, m.Queue("a.py", 20, Op{Start: 0, End: 10, Text: "x"}))

	err := m.Queue("a.py", 20, Op{Start: 5, End: 15, Text: "y"})
	require.ErrorIs(t, err, ErrOverlappingEdit)

	// Other files are independent.
	require.NoError(t, m.Queue("b.py", 20, Op{Start: 5, End: 15, Text: "y"}))

	p, ok := m.Pending("a.py")
	require.True(t, ok)
	assert.Equal(t, 1, p.Len())
}

func TestManager_QueueDuplicateIsNoop(t *testing.T) {
	t.Parallel()

	m := NewManager()
	op := Op{Start: 2, End: 6}
	require.NoError(t, m.Queue("a.py", 10, op))
	require.NoError(t, m.Queue("a.py", 10, op))

	p, ok := m.Pending("a.py")
	require.True(t, ok)
	assert.Equal(t, 1, p.Len())
}

func TestManager_QueueOutOfRange(t *testing.T) {
	t.Parallel()

	m := NewManager()
	require.ErrorIs(t, m.Queue("a.py", 4, Op{Start: 2, End: 5}), ErrOutOfRange)
	require.ErrorIs(t, m.Queue("a.py", 4, Op{Start: 3, End: 2}), ErrOutOfRange)
	assert.Equal(t, Clean, m.State("a.py"))
}

func TestManager_StateMachine(t *testing.T) {
	t.Parallel()

	m := NewManager()
	assert.Equal(t, Clean, m.State("a.py"))
	assert.Empty(t, m.Dirty())

	require.NoError(t, m.Queue("a.py", 3, Op{Start: 0, End: 0, Text: "#"}))
	m.Create("new.py")
	assert.Equal(t, Dirty, m.State("a.py"))
	assert.Equal(t, []string{"a.py", "new.py"}, m.Dirty())

	m.Settle("a.py", "new.py")
	assert.Equal(t, Clean, m.State("a.py"))
	assert.EqualValues(t, 1, m.Generation("a.py"))
	assert.EqualValues(t, 1, m.Generation("new.py"))

	require.NoError(t, m.Queue("a.py", 4, Op{Start: 0, End: 1}))
	assert.Equal(t, []string{"a.py"}, m.Reset())
	assert.Equal(t, Clean, m.State("a.py"))
	assert.EqualValues(t, 1, m.Generation("a.py"))
}

func TestManager_RemoveDropsOps(t *testing.T) {
	t.Parallel()

	m := NewManager()
	require.NoError(t, m.Queue("a.py", 4, Op{Start: 0, End: 1}))
	m.Remove("a.py")

	p, ok := m.Pending("a.py")
	require.True(t, ok)
	assert.True(t, p.Removed)
	assert.Zero(t, p.Len())

	require.ErrorIs(t, m.Queue("a.py", 4, Op{Start: 0, End: 1}), ErrFileRemoved)
}

func TestApply(t *testing.T) {
	t.Parallel()

	src := []byte("def helper(): pass\n\ndef main(): helper()")
	m := NewManager()
	require.NoError(t, m.Queue("a.py", len(src), Op{Start: 0, End: 20}))
	require.NoError(t, m.Queue("a.py", len(src), Op{Start: 0, End: 0, Text: "from b import helper\n\n"}))

	p, ok := m.Pending("a.py")
	require.True(t, ok)
	ops := p.Ops()
	require.Len(t, ops, 2)
	assert.True(t, ops[0].IsInsert())

	out, err := Apply(src, ops)
	require.NoError(t, err)
	assert.Equal(t, "from b import helper\n\ndef main(): helper()", string(out))
}

func TestApply_InsertOrderIsQueueOrder(t *testing.T) {
	t.Parallel()

	m := NewManager()
	require.NoError(t, m.Queue("a", 3, Op{Start: 3, End: 3, Text: "1"}))
	require.NoError(t, m.Queue("a", 3, Op{Start: 3, End: 3, Text: "2"}))
	require.NoError(t, m.Queue("a", 3, Op{Start: 1, End: 2, Text: "B"}))

	p, _ := m.Pending("a")
	out, err := Apply([]byte("abc"), p.Ops())
	require.NoError(t, err)
	assert.Equal(t, "aBc12", string(out))
}

func TestApply_RejectsUnsortedOverlap(t *testing.T) {
	t.Parallel()

	_, err := Apply([]byte("0123456789"), []Op{{Start: 0, End: 5}, {Start: 3, End: 4}})
	require.ErrorIs(t, err, ErrOverlappingEdit)
}

func TestManager_Withdraw(t *testing.T) {
	t.Parallel()

	m := NewManager()
	del := Op{Start: 2, End: 6}
	require.NoError(t, m.Queue("a.py", 20, del))
	require.ErrorIs(t, m.Queue("a.py", 20, Op{Start: 0, End: 4}), ErrOverlappingEdit)

	assert.True(t, m.Withdraw("a.py", del))
	assert.False(t, m.Withdraw("a.py", del))
	assert.Equal(t, Clean, m.State("a.py"))
	require.NoError(t, m.Queue("a.py", 20, Op{Start: 0, End: 8}))
}

func TestManager_SnapshotRestore(t *testing.T) {
	t.Parallel()

	m := NewManager()
	require.NoError(t, m.Queue("a.py", 20, Op{Start: 0, End: 2}))
	snap := m.Snapshot()

	require.NoError(t, m.Queue("a.py", 20, Op{Start: 4, End: 6, Text: "x"}))
	m.Create("b.py")
	m.Remove("c.py")
	assert.Equal(t, []string{"a.py", "b.py", "c.py"}, m.Dirty())

	m.Restore(snap)
	assert.Equal(t, []string{"a.py"}, m.Dirty())
	p, ok := m.Pending("a.py")
	require.True(t, ok)
	assert.Equal(t, 1, p.Len())

	// The snapshot is unaffected by later queueing.
	require.NoError(t, m.Queue("a.py", 20, Op{Start: 4, End: 6}))
	m.Restore(snap)
	p, _ = m.Pending("a.py")
	assert.Equal(t, 1, p.Len())
}
