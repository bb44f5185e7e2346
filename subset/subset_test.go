package subset_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plinkql/pgencore/subset"
)

type fakeMeta map[string]int

func (m fakeMeta) IndexOf(iid string) (int, bool) {
	i, ok := m[iid]
	return i, ok
}

func (m fakeMeta) AllIIDs() []string {
	out := make([]string, 0, len(m))
	for iid := range m {
		out = append(out, iid)
	}
	return out
}

func TestResolveIndicesIntList(t *testing.T) {
	idx, err := subset.ResolveIndices(subset.IntList{0, 2, 3}, 4, nil)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 2, 3}, idx)
}

func TestResolveIndicesOutOfRange(t *testing.T) {
	_, err := subset.ResolveIndices(subset.IntList{0, 9}, 4, nil)
	require.Error(t, err)
}

func TestResolveIndicesDuplicate(t *testing.T) {
	_, err := subset.ResolveIndices(subset.IntList{1, 1}, 4, nil)
	require.Error(t, err)
}

func TestResolveIndicesStringListRequiresMeta(t *testing.T) {
	_, err := subset.ResolveIndices(subset.StringList{"S1"}, 4, nil)
	require.Error(t, err)
}

func TestResolveIndicesStringList(t *testing.T) {
	meta := fakeMeta{"S1": 0, "S2": 1, "S3": 2}
	idx, err := subset.ResolveIndices(subset.StringList{"S2", "S1"}, 3, meta)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint32{0, 1}, idx)
}

func TestResolveIndicesUnknownID(t *testing.T) {
	meta := fakeMeta{"S1": 0}
	_, err := subset.ResolveIndices(subset.StringList{"S9"}, 3, meta)
	require.Error(t, err)
}

func TestResolveIndicesUnknownIDSuggestsClosestMatch(t *testing.T) {
	meta := fakeMeta{"SAMPLE1": 0, "SAMPLE2": 1}
	_, err := subset.ResolveIndices(subset.StringList{"SAMPL1"}, 3, meta)
	require.Error(t, err)
	require.Contains(t, err.Error(), "SAMPLE1")
}

func TestBuildSubset(t *testing.T) {
	s, err := subset.Build(100, []uint32{5, 2, 99, 2})
	require.NoError(t, err)
	defer s.Release()

	require.Equal(t, []uint32{2, 2, 5, 99}, s.SortedIndices) // Build does not itself dedup
	require.Equal(t, 4, s.SampleCt())

	include := s.Include()
	require.True(t, include[0]&(1<<2) != 0)
	require.True(t, include[0]&(1<<5) != 0)
	require.True(t, include[3]&(1<<(99%32)) != 0)

	cum := s.CumulativePopcounts()
	require.Equal(t, uint32(0), cum[0])
	require.True(t, cum[3] >= cum[0])
}

func TestFingerprintStable(t *testing.T) {
	s1, err := subset.Build(10, []uint32{1, 2, 3})
	require.NoError(t, err)
	defer s1.Release()
	s2, err := subset.Build(10, []uint32{3, 2, 1})
	require.NoError(t, err)
	defer s2.Release()
	require.Equal(t, s1.Fingerprint(), s2.Fingerprint())
}
