package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shape-annotator/internal/shapes/models"
)

func line(x float64) models.Shape {
	return models.Shape{Type: models.KindLine, X0: x, Y0: x, X1: x + 0.1, Y1: x + 0.1}
}

func list(shapes ...models.Shape) models.ShapeList {
	return models.ShapeList(shapes)
}

func TestUndoWalksBackToEmpty(t *testing.T) {
	e := New()
	l1, l2 := line(0.1), line(0.2)

	require.NoError(t, e.ApplyEdit(models.ShapesChanged(list(l1))))
	require.NoError(t, e.ApplyEdit(models.ShapesChanged(list(l1, l2))))

	assert.True(t, e.Undo())
	assert.Equal(t, list(l1), e.Current())

	assert.True(t, e.Undo())
	assert.Equal(t, models.ShapeList{}, e.Current())

	assert.False(t, e.Undo())
	assert.Equal(t, models.ShapeList{}, e.Current())
}

func TestUndoPastFloorIsIdempotent(t *testing.T) {
	for n := 0; n <= 4; n++ {
		for k := 0; k <= 3; k++ {
			t.Run(fmt.Sprintf("edits=%d/extra=%d", n, k), func(t *testing.T) {
				e := New()
				acc := models.ShapeList{}
				for i := 0; i < n; i++ {
					acc = append(acc, line(float64(i)))
					require.NoError(t, e.ApplyEdit(models.ShapesChanged(acc)))
				}
				for i := 0; i < n+k; i++ {
					e.Undo()
				}
				assert.Equal(t, models.ShapeList{}, e.Current())
				assert.Empty(t, e.History())
			})
		}
	}
}

func TestSeedResetsHistory(t *testing.T) {
	e := New()
	a, b, r := line(0.1), line(0.2), line(0.9)
	require.NoError(t, e.ApplyEdit(models.ShapesChanged(list(a))))
	require.NoError(t, e.ApplyEdit(models.ShapesChanged(list(a, b))))

	e.Seed(list(r))

	assert.Equal(t, list(r), e.Current())
	assert.Equal(t, []models.ShapeList{list(r)}, e.History())
}

func TestFirstUndoAfterSeedIsNoop(t *testing.T) {
	e := New()
	l := list(line(0.5))
	e.Seed(l)

	assert.False(t, e.Undo())
	assert.Equal(t, l, e.Current())

	require.NoError(t, e.ApplyEdit(models.ShapesChanged(list(line(0.5), line(0.6)))))
	assert.True(t, e.Undo())
	assert.Equal(t, l, e.Current())
	assert.False(t, e.Undo())
	assert.Equal(t, l, e.Current())
}

func TestSeedThenEditThenUndo(t *testing.T) {
	e := New()
	shapeA := models.Shape{Type: models.KindRect, X1: 1, Y1: 1}
	shapeB := models.Shape{Type: models.KindCircle, X0: 0.2, X1: 0.4}

	e.Seed(list(shapeA))
	require.NoError(t, e.ApplyEdit(models.ShapesChanged(list(shapeA, shapeB))))
	e.Undo()

	assert.Equal(t, list(shapeA), e.Current())
}

func TestSeedNilBecomesEmptyList(t *testing.T) {
	e := New()
	e.Seed(nil)
	assert.Equal(t, models.ShapeList{}, e.Current())
	assert.Len(t, e.History(), 1)
}

func TestDragModeDoesNotTouchShapes(t *testing.T) {
	e := New()
	l := list(line(0.3))
	require.NoError(t, e.ApplyEdit(models.ShapesChanged(l)))

	renders := 0
	defer e.Subscribe(func(models.ShapeList) { renders++ })()

	require.NoError(t, e.ApplyEdit(models.DragModeChanged(models.DragSelect)))

	assert.Equal(t, models.DragSelect, e.DragMode())
	assert.Equal(t, l, e.Current())
	assert.Len(t, e.History(), 1)
	assert.Zero(t, renders)
}

func TestCombinedEventAppliesBothAxes(t *testing.T) {
	e := New()
	mode := models.DragSelect
	shapes := list(line(0.1))

	require.NoError(t, e.ApplyEdit(models.EditEvent{DragMode: &mode, Shapes: &shapes}))

	assert.Equal(t, models.DragSelect, e.DragMode())
	assert.Equal(t, shapes, e.Current())
	assert.Len(t, e.History(), 1)
}

func TestInvalidDragModeIsRejected(t *testing.T) {
	e := New()
	bad := models.DragMode("lasso")
	shapes := list(line(0.1))

	err := e.ApplyEdit(models.EditEvent{DragMode: &bad, Shapes: &shapes})
	assert.ErrorIs(t, err, ErrInvalidDragMode)
	assert.Equal(t, models.DragPan, e.DragMode())
	assert.Empty(t, e.History())
}

func TestCurrentDoesNotAliasHistory(t *testing.T) {
	e := New()
	require.NoError(t, e.ApplyEdit(models.ShapesChanged(list(line(0.1)))))

	got := e.Current()
	got[0].X0 = 42

	assert.Equal(t, 0.1, e.Current()[0].X0)
}

func TestLastSnapshotEqualsCurrent(t *testing.T) {
	e := New()
	e.Seed(list(line(0.1)))
	require.NoError(t, e.ApplyEdit(models.ShapesChanged(list(line(0.1), line(0.2)))))
	require.NoError(t, e.ApplyEdit(models.DragModeChanged(models.DragSelect)))
	e.Undo()
	require.NoError(t, e.ApplyEdit(models.ShapesChanged(list(line(0.3)))))

	h := e.History()
	require.NotEmpty(t, h)
	assert.Equal(t, h[len(h)-1], e.Current())
}

func TestSubscribersReceiveRenders(t *testing.T) {
	e := New()
	var got []models.ShapeList
	unsubscribe := e.Subscribe(func(l models.ShapeList) { got = append(got, l) })

	require.NoError(t, e.ApplyEdit(models.ShapesChanged(list(line(0.1)))))
	e.Undo()
	e.Undo()
	e.Seed(list(line(0.7)))

	unsubscribe()
	unsubscribe()
	require.NoError(t, e.ApplyEdit(models.ShapesChanged(list(line(0.8)))))

	assert.Equal(t, []models.ShapeList{list(line(0.1)), {}, list(line(0.7))}, got)
}

func TestSeedQuietDefersRender(t *testing.T) {
	e := New()
	var renders []models.ShapeList
	e.Subscribe(func(l models.ShapeList) { renders = append(renders, l) })
	require.NoError(t, e.ApplyEdit(models.ShapesChanged(list(line(0.1)))))

	e.SeedQuiet(list(line(0.5)))
	assert.Len(t, renders, 1)
	assert.Equal(t, list(line(0.5)), e.Current())
	assert.False(t, e.Undo())

	e.Publish()
	assert.Equal(t, []models.ShapeList{list(line(0.1)), list(line(0.5))}, renders)
}

func TestConcurrentEditsKeepInvariant(t *testing.T) {
	e := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = e.ApplyEdit(models.ShapesChanged(list(line(float64(i)))))
				e.Undo()
			}
		}(i)
	}
	wg.Wait()

	h := e.History()
	if len(h) == 0 {
		assert.Equal(t, models.ShapeList{}, e.Current())
		return
	}
	assert.Equal(t, h[len(h)-1], e.Current())
}
