package mock

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unboundedsystems/adapt/internal/language"
	"github.com/unboundedsystems/adapt/internal/observer"
)

var byID = language.MustParseQuery(`query($id: ID!) { mockById(id: $id) { id numericId } }`)

func TestNeedsDataBeforeObserve(t *testing.T) {
	ctx := context.Background()
	m := observer.NewManager()
	require.NoError(t, m.RegisterSchema(observer.Name(Name), New().Schema(), observer.ObserverResponse{}))

	res, err := m.ExecuteQuery(ctx, observer.Name(Name), byID, map[string]any{"id": "1"})
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	require.True(t, strings.HasPrefix(res.Errors[0].Message, observer.NeedsDataMarker))

	needs := m.ExecutedQueriesThatNeededData()[Name]
	require.Len(t, needs, 1)
	require.Equal(t, language.Print(byID), language.Print(needs[0].Query))
	require.Equal(t, map[string]any{"id": "1"}, needs[0].Variables)
}

func TestObserveSatisfiesQueries(t *testing.T) {
	ctx := context.Background()
	obs := New()
	m := observer.NewManager()
	require.NoError(t, m.RegisterSchema(observer.Name(Name), obs.Schema(), observer.ObserverResponse{}))

	for _, id := range []string{"1", "7", "x"} {
		_, err := m.ExecuteQuery(ctx, observer.Name(Name), byID, map[string]any{"id": id})
		require.NoError(t, err)
	}
	_, err := m.ExecuteQuery(ctx, observer.Name(Name), language.MustParseQuery(`{ mockById(id: 9) { id } }`), nil)
	require.NoError(t, err)

	resp, err := obs.Observe(ctx, m.ExecutedQueriesThatNeededData()[Name])
	require.NoError(t, err)
	require.Equal(t, 1, obs.Observed())
	require.Len(t, resp.Context, 4)

	next := observer.NewManager()
	require.NoError(t, next.RegisterSchema(observer.Name(Name), obs.Schema(), resp))
	res, err := next.ExecuteQuery(ctx, observer.Name(Name), byID, map[string]any{"id": "7"})
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{"mockById": map[string]any{"id": "7", "numericId": 7}}, res.Data)

	res, err = next.ExecuteQuery(ctx, observer.Name(Name), language.MustParseQuery(`{ mockObjects { id } }`), nil)
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{"mockObjects": []any{
		map[string]any{"id": "1"},
		map[string]any{"id": "7"},
		map[string]any{"id": "9"},
		map[string]any{"id": "x"},
	}}, res.Data)
	require.Empty(t, next.ExecutedQueriesThatNeededData())
}

func TestObserveCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Observe(ctx, []observer.ExecutedQuery{{Query: byID, Variables: map[string]any{"id": "1"}}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestMissingIDIsNotObserved(t *testing.T) {
	ctx := context.Background()
	obs := New()
	m := observer.NewManager()
	require.NoError(t, m.RegisterSchema(observer.Name(Name), obs.Schema(), observer.ObserverResponse{}))

	missing := language.MustParseQuery(`{ mockById { id } }`)
	res, err := m.ExecuteQuery(ctx, observer.Name(Name), missing, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"mockById": nil}, res.Data)
	require.Len(t, res.Errors, 1)
	require.False(t, observer.IsNeedsData(res.Errors[0]))
	require.Empty(t, m.ExecutedQueriesThatNeededData())

	resp, err := obs.Observe(ctx, []observer.ExecutedQuery{{Query: missing}})
	require.NoError(t, err)
	require.Empty(t, resp.Context)
}
