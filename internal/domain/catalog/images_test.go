package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func galleryOf(productID int64, created time.Time) []ProductImage {
	return []ProductImage{
		{ID: 1, ProductID: productID, URL: "a.jpg", AltText: "a", SortOrder: 0, IsPrimary: true, CreatedAt: created, UpdatedAt: created},
		{ID: 2, ProductID: productID, URL: "b.jpg", AltText: "b", SortOrder: 1, CreatedAt: created, UpdatedAt: created},
	}
}

func TestReconcileImages_Idempotent(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	now := created.Add(time.Hour)
	current := galleryOf(10, created)

	desired := []ImageSpec{
		ExistingImage(1, "a.jpg", "a", 0, true),
		ExistingImage(2, "b.jpg", "b", 1, false),
	}

	cs, err := ReconcileImages(10, current, desired, now)
	require.NoError(t, err)

	assert.Empty(t, cs.Inserts)
	assert.Empty(t, cs.DeleteIDs)
	require.Len(t, cs.Updates, 2)
	for i, upd := range cs.Updates {
		// Field values are unchanged; only the update timestamp moves.
		assert.Equal(t, current[i].URL, upd.URL)
		assert.Equal(t, current[i].AltText, upd.AltText)
		assert.Equal(t, current[i].SortOrder, upd.SortOrder)
		assert.Equal(t, current[i].IsPrimary, upd.IsPrimary)
		assert.Equal(t, created, upd.CreatedAt)
		assert.Equal(t, now, upd.UpdatedAt)
	}
}

func TestReconcileImages_MixedOperations(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	now := created.Add(time.Hour)
	current := galleryOf(10, created)

	// Image 1 updated, image 2 dropped, one new image added.
	desired := []ImageSpec{
		ExistingImage(1, "a2.jpg", "new alt", 0, false),
		NewImage("c.jpg", "c", 1, true),
	}

	cs, err := ReconcileImages(10, current, desired, now)
	require.NoError(t, err)

	require.Len(t, cs.Updates, 1)
	assert.Equal(t, int64(1), cs.Updates[0].ID)
	assert.Equal(t, "a2.jpg", cs.Updates[0].URL)
	assert.Equal(t, "new alt", cs.Updates[0].AltText)
	assert.False(t, cs.Updates[0].IsPrimary)

	assert.Equal(t, []int64{2}, cs.DeleteIDs)

	require.Len(t, cs.Inserts, 1)
	assert.Zero(t, cs.Inserts[0].ID)
	assert.Equal(t, int64(10), cs.Inserts[0].ProductID)
	assert.Equal(t, "c.jpg", cs.Inserts[0].URL)
	assert.Equal(t, now, cs.Inserts[0].CreatedAt)
}

func TestReconcileImages_EmptyDesiredDeletesAll(t *testing.T) {
	created := time.Now()
	current := galleryOf(10, created)

	cs, err := ReconcileImages(10, current, []ImageSpec{}, created)
	require.NoError(t, err)

	assert.Empty(t, cs.Inserts)
	assert.Empty(t, cs.Updates)
	assert.ElementsMatch(t, []int64{1, 2}, cs.DeleteIDs)
}

func TestReconcileImages_UnknownIdentity(t *testing.T) {
	current := galleryOf(10, time.Now())

	_, err := ReconcileImages(10, current, []ImageSpec{
		ExistingImage(99, "x.jpg", "", 0, false),
	}, time.Now())

	var infErr *ImageNotFoundError
	require.ErrorAs(t, err, &infErr)
	assert.Equal(t, int64(99), infErr.ImageID)
	assert.Equal(t, int64(10), infErr.ProductID)
}

func TestReconcileImages_MultiplePrimariesAllowed(t *testing.T) {
	// The reconciler takes the desired list verbatim: several primaries are
	// accepted, none is "fixed up".
	cs, err := ReconcileImages(10, nil, []ImageSpec{
		NewImage("a.jpg", "", 0, true),
		NewImage("b.jpg", "", 1, true),
	}, time.Now())
	require.NoError(t, err)

	require.Len(t, cs.Inserts, 2)
	assert.True(t, cs.Inserts[0].IsPrimary)
	assert.True(t, cs.Inserts[1].IsPrimary)
}

func TestReconcileImages_EmptyBothSides(t *testing.T) {
	cs, err := ReconcileImages(10, nil, nil, time.Now())
	require.NoError(t, err)
	assert.True(t, cs.Empty())
}
