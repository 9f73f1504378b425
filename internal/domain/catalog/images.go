package catalog

import "time"

// ImageSpec describes one entry of a desired gallery state. A spec either
// introduces a new image or overwrites an existing one; the two cases are
// distinguished by construction, not by a magic identity value.
type ImageSpec struct {
	id        int64
	URL       string
	AltText   string
	SortOrder int
	IsPrimary bool
}

// NewImage builds a spec for an image that does not exist yet.
func NewImage(url, altText string, sortOrder int, isPrimary bool) ImageSpec {
	return ImageSpec{
		URL:       url,
		AltText:   altText,
		SortOrder: sortOrder,
		IsPrimary: isPrimary,
	}
}

// ExistingImage builds a spec that overwrites the persisted image with the
// given identity.
func ExistingImage(id int64, url, altText string, sortOrder int, isPrimary bool) ImageSpec {
	return ImageSpec{
		id:        id,
		URL:       url,
		AltText:   altText,
		SortOrder: sortOrder,
		IsPrimary: isPrimary,
	}
}

// Existing returns the identity of the persisted image this spec targets,
// and whether it targets one at all.
func (s ImageSpec) Existing() (int64, bool) {
	return s.id, s.id != 0
}

// ImageChangeSet holds the three disjoint operation sets produced by
// reconciliation. They are meant to be applied as one atomic unit.
type ImageChangeSet struct {
	Inserts   []ProductImage
	Updates   []ProductImage
	DeleteIDs []int64
}

// Empty reports whether applying the change set would write nothing.
func (c ImageChangeSet) Empty() bool {
	return len(c.Inserts) == 0 && len(c.Updates) == 0 && len(c.DeleteIDs) == 0
}

// ReconcileImages diffs the desired gallery state against the persisted one.
// Persisted images absent from desired are deleted; specs targeting a
// persisted image overwrite its fields and refresh its update timestamp;
// specs without an identity become inserts linked to productID.
//
// A spec targeting an identity that is not in current fails with
// *ImageNotFoundError rather than being silently ignored. Sort orders are
// taken verbatim from the specs, and nothing here enforces a single primary
// image: the desired list dictates both.
func ReconcileImages(productID int64, current []ProductImage, desired []ImageSpec, now time.Time) (ImageChangeSet, error) {
	currentByID := make(map[int64]ProductImage, len(current))
	for _, img := range current {
		currentByID[img.ID] = img
	}

	var cs ImageChangeSet
	desiredIDs := make(map[int64]struct{}, len(desired))

	for _, spec := range desired {
		id, ok := spec.Existing()
		if !ok {
			cs.Inserts = append(cs.Inserts, ProductImage{
				ProductID: productID,
				URL:       spec.URL,
				AltText:   spec.AltText,
				SortOrder: spec.SortOrder,
				IsPrimary: spec.IsPrimary,
				CreatedAt: now,
				UpdatedAt: now,
			})
			continue
		}

		persisted, found := currentByID[id]
		if !found {
			return ImageChangeSet{}, &ImageNotFoundError{ImageID: id, ProductID: productID}
		}
		desiredIDs[id] = struct{}{}

		persisted.URL = spec.URL
		persisted.AltText = spec.AltText
		persisted.SortOrder = spec.SortOrder
		persisted.IsPrimary = spec.IsPrimary
		persisted.UpdatedAt = now
		cs.Updates = append(cs.Updates, persisted)
	}

	for _, img := range current {
		if _, keep := desiredIDs[img.ID]; !keep {
			cs.DeleteIDs = append(cs.DeleteIDs, img.ID)
		}
	}

	return cs, nil
}
