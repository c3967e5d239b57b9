package domain_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct{ title string }

func TestNode_Equal(t *testing.T) {
	d := &doc{title: "a"}
	base := domain.NodeArg{ID: "x", Type: "doc", Data: d, Properties: domain.Properties{"label": "X"}}

	t.Run("same content", func(t *testing.T) {
		assert.True(t, base.Node().Equal(base.Node()))
	})

	t.Run("data identity", func(t *testing.T) {
		other := base
		other.Data = &doc{title: "a"}
		assert.False(t, base.Node().Equal(other.Node()), "pointers compare by identity")
	})

	t.Run("property change", func(t *testing.T) {
		other := base
		other.Properties = domain.Properties{"label": "Y"}
		assert.False(t, base.Node().Equal(other.Node()))
	})

	t.Run("handler presence", func(t *testing.T) {
		other := base
		other.Handlers.OnCopy = func(context.Context, *domain.Node, int) error { return nil }
		assert.False(t, base.Node().Equal(other.Node()))

		again := other
		again.Handlers.OnCopy = func(context.Context, *domain.Node, int) error { return errors.New("x") }
		assert.True(t, other.Node().Equal(again.Node()), "only presence of callbacks is compared")
	})

	t.Run("persistence", func(t *testing.T) {
		a := base
		a.Persistence = domain.Persistence{AcceptClass: domain.NewSet("doc")}
		b := base
		b.Persistence = domain.Persistence{AcceptClass: domain.NewSet("doc")}
		assert.True(t, a.Node().Equal(b.Node()))
		b.Persistence.AcceptKey = domain.NewSet("k")
		assert.False(t, a.Node().Equal(b.Node()))
	})
}

func TestNode_Merge(t *testing.T) {
	existing := domain.NodeArg{ID: "x", Properties: domain.Properties{"label": "X", "icon": "i"}}.Node()
	merged := existing.Merge(domain.NodeArg{ID: "x", Properties: domain.Properties{"label": "Y"}})

	assert.Equal(t, "Y", merged.Label())
	assert.Equal(t, "i", merged.Properties.String(domain.PropIcon))
	assert.Equal(t, domain.KindPlain, merged.Kind)
	assert.Equal(t, "X", existing.Label(), "merge must not mutate the old snapshot")
}

func TestValidateID(t *testing.T) {
	require.NoError(t, domain.ValidateID("space:1"))
	assert.ErrorIs(t, domain.ValidateID(""), domain.ErrInvalidID)
	assert.ErrorIs(t, domain.ValidateID("a~b"), domain.ErrInvalidID)
}

func TestPathHelpers(t *testing.T) {
	path := []string{"root", "Y", "X"}
	key := domain.PathKey(path)
	assert.Equal(t, "root~Y~X", key)
	assert.Equal(t, path, domain.SplitPathKey(key))
	assert.Equal(t, []string{"root", "Y"}, domain.ParentPath(path))
	assert.Equal(t, "X", domain.LastID(path))
	assert.True(t, domain.ContainsID(path, "Y"))
	assert.False(t, domain.SamePath(path, []string{"root", "X"}))
}

func TestContributorError(t *testing.T) {
	run := func() (err error) {
		defer domain.Recover("ext", "node", "connector", &err)
		panic("boom")
	}
	err := run()

	var cerr *domain.ContributorError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "ext", cerr.ExtensionID)
	assert.Contains(t, err.Error(), "boom")
}
