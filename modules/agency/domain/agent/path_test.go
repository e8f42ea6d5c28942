package agent

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	idA = uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	idB = uuid.MustParse("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb")
	idC = uuid.MustParse("cccccccc-cccc-cccc-cccc-cccccccccccc")
	idD = uuid.MustParse("dddddddd-dddd-dddd-dddd-dddddddddddd")
)

func TestParsePath_RoundTrip(t *testing.T) {
	p := Path{idA, idB}
	parsed, err := ParsePath(p.String())
	require.NoError(t, err)
	require.Equal(t, p, parsed)
}

func TestParsePath_Empty(t *testing.T) {
	parsed, err := ParsePath("")
	require.NoError(t, err)
	require.Nil(t, parsed)
	require.Equal(t, "", parsed.String())
	require.Equal(t, 0, parsed.Depth())
}

func TestParsePath_RejectsGarbage(t *testing.T) {
	_, err := ParsePath("not-a-uuid")
	require.Error(t, err)
}

func TestAppend_DoesNotAliasOriginal(t *testing.T) {
	base := Path{idA}
	child := base.Append(idB)
	grandchild := base.Append(idC)

	require.Equal(t, Path{idA, idB}, child)
	require.Equal(t, Path{idA, idC}, grandchild)
	require.Equal(t, Path{idA}, base)
}

func TestChildPath(t *testing.T) {
	require.Nil(t, ChildPath(nil))

	upline := &Agent{ID: idB, HierarchyPath: Path{idA}}
	require.Equal(t, Path{idA, idB}, ChildPath(upline))
}

func TestSplice_PreservesSuffixBelowMovedAgent(t *testing.T) {
	// C sits under A.B; B moves under D.
	descPath := Path{idA, idB}
	got, err := Splice(descPath, idB, Path{idD})
	require.NoError(t, err)
	require.Equal(t, Path{idD, idB}, got)

	// Deeper descendant A.B.C moving with B keeps C's suffix.
	deeper := Path{idA, idB, idC}
	got, err = Splice(deeper, idB, Path{idD})
	require.NoError(t, err)
	require.Equal(t, Path{idD, idB, idC}, got)
}

func TestSplice_MovedToRoot(t *testing.T) {
	got, err := Splice(Path{idA, idB, idC}, idB, nil)
	require.NoError(t, err)
	require.Equal(t, Path{idB, idC}, got)
}

func TestSplice_RejectsUnrelatedDescendant(t *testing.T) {
	_, err := Splice(Path{idA, idC}, idB, Path{idD})
	require.Error(t, err)
}

func TestSubtreePrefix(t *testing.T) {
	require.Equal(t, idA.String(), SubtreePrefix(nil, idA))
	require.Equal(t, idA.String()+"."+idB.String(), SubtreePrefix(Path{idA}, idB))
}

func TestIsDescendantOf(t *testing.T) {
	a := &Agent{ID: idC, HierarchyPath: Path{idA, idB}}
	require.True(t, a.IsDescendantOf(idA))
	require.True(t, a.IsDescendantOf(idB))
	require.False(t, a.IsDescendantOf(idD))
}
