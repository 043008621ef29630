package merging

import "github.com/Ramsey-B/fern/pkg/models"

// ListingNotListed is the market-listing sentinel for companies with no listing.
const ListingNotListed = "非上場"

// PlanListingBackfill sets the listing field to the not-listed sentinel when
// it is unset. Records that already carry a listing value get a no-op plan.
// Entity merges do not use this; there listing follows the generic rule.
func PlanListingBackfill(rec *models.CompanyRecord) *models.MergePlan {
	plan := models.NewMergePlan(rec.ID)
	if isEmpty(rec.Get(models.FieldListing)) {
		plan.FieldsToSet[models.FieldListing] = ListingNotListed
	} else {
		plan.FieldsPreserved = append(plan.FieldsPreserved, models.FieldListing)
	}
	return plan
}
