package bucket

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minio/slabhash/internal/proto"
)

func TestNewArrayInitializesEmpty(t *testing.T) {
	a := New(8)
	require.Equal(t, 8, a.Len())

	for b := 0; b < a.Len(); b++ {
		head := a.Head(uint32(b))
		for lane := 0; lane < proto.WordsPerSlab; lane++ {
			if lane == proto.NextSlabLane {
				require.Equal(t, uint32(proto.EmptySlab), head.Load(lane))
			} else {
				require.Equal(t, uint32(proto.EmptyPair), head.Load(lane))
			}
		}
	}
}

func TestHeadIdentityStable(t *testing.T) {
	a := New(4)
	h1 := a.Head(2)
	h1.Store(0, 99)
	h2 := a.Head(2)
	require.Equal(t, uint32(99), h2.Load(0))
}
