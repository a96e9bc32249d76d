package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/campaignkeeper/internal/types"
)

func testEngine() *Engine {
	return NewEngine(testCatalog(), Options{}, nil).WithClock(func() time.Time { return fixedNow })
}

func TestEngine_CompileUsesClock(t *testing.T) {
	seg, err := testEngine().Compile(rule("r", "lastOrder", types.OpGreaterOrEqual, "P7D"))
	require.NoError(t, err)
	assert.True(t, seg.CompiledAt.Equal(fixedNow))
	assert.True(t, seg.Match(customer("c", map[string]any{"lastOrder": daysAgo(6)})))
	assert.False(t, seg.Match(customer("c", map[string]any{"lastOrder": daysAgo(8)})))
}

func TestEngine_CompilePersistedDrift(t *testing.T) {
	_, err := testEngine().CompilePersisted(and("root", rule("r", "loyaltyPoints", types.OpGreaterThan, 10.0)))

	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCatalogDrift)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, []ErrorKind{KindUnknownField}, verrs.Kinds())
}

func TestEngine_CompileText(t *testing.T) {
	e := testEngine()

	t.Run("valid translation", func(t *testing.T) {
		tr := TranslatorFunc(func(_ context.Context, text string) (types.Node, error) {
			return and("root", rule("r", "spend", types.OpGreaterThan, 500.0)), nil
		})
		tree, seg, err := e.CompileText(context.Background(), tr, "big spenders")
		require.NoError(t, err)
		assert.NotNil(t, tree)
		assert.Equal(t, "spend is greater than 500", seg.Description)
	})

	t.Run("translation revalidated", func(t *testing.T) {
		tr := TranslatorFunc(func(_ context.Context, text string) (types.Node, error) {
			return rule("r", "favouriteColour", types.OpEquals, "blue"), nil
		})
		tree, seg, err := e.CompileText(context.Background(), tr, "people who like blue")
		var verrs ValidationErrors
		require.True(t, errors.As(err, &verrs))
		assert.NotNil(t, tree)
		assert.Nil(t, seg)
		assert.NotErrorIs(t, err, types.ErrCatalogDrift)
	})

	t.Run("translator failure", func(t *testing.T) {
		tr := TranslatorFunc(func(_ context.Context, text string) (types.Node, error) {
			return nil, errors.New("upstream 503")
		})
		_, _, err := e.CompileText(context.Background(), tr, "anything")
		assert.ErrorIs(t, err, types.ErrTranslatorUnavailable)
	})
}
