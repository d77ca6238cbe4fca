package discovery

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/jmehdipour/place-discovery/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePlace(t *testing.T) {
	h := newHarness(t, 10)
	ctx := context.Background()

	rec, inserted, err := h.engine.CreatePlace(ctx, model.PlaceInput{Name: "Pizza Hotel", Location: "8 Road"})
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, "Indian", rec.Cuisine, "earlier rule wins")

	again, inserted, err := h.engine.CreatePlace(ctx, model.PlaceInput{Name: " pizza  hotel", Location: "8 road", Cuisine: "Italian"})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, rec.ID, again.ID)

	given, _, err := h.engine.CreatePlace(ctx, model.PlaceInput{Name: "Corner Spot", Location: "9 Road", Cuisine: "Fusion"})
	require.NoError(t, err)
	assert.Equal(t, "Fusion", given.Cuisine)

	bad := []model.PlaceInput{
		{Name: "", Location: "x"},
		{Name: "x", Location: " "},
		{Name: strings.Repeat("n", MaxPlaceNameRunes+1), Location: "x"},
		{Name: "x", Location: strings.Repeat("l", MaxPlaceAddressRunes+1)},
		{Name: "x", Location: "y", Rating: fptr(7)},
	}
	for i, in := range bad {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			_, _, err := h.engine.CreatePlace(ctx, in)
			assert.ErrorIs(t, err, model.ErrInvalid)
		})
	}
}

func TestGetAndListPlaces(t *testing.T) {
	h := newHarness(t, 10)
	ctx := context.Background()
	rec, _, err := h.engine.CreatePlace(ctx, model.PlaceInput{Name: "Taco Stand", Location: "1 Plaza"})
	require.NoError(t, err)

	got, err := h.engine.GetPlace(ctx, rec.ID, model.Requester{})
	require.NoError(t, err)
	assert.Equal(t, "Taco Stand", got.Name)
	assert.Equal(t, "Mexican", got.Cuisine)

	_, err = h.engine.GetPlace(ctx, rec.ID+100, model.Requester{})
	assert.ErrorIs(t, err, model.ErrNotFound)

	list, err := h.engine.ListPlaces(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	ok, err := h.places.Deactivate(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = h.engine.GetPlace(ctx, rec.ID, model.Requester{})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestImportPlaces(t *testing.T) {
	h := newHarness(t, 10)
	ctx := context.Background()
	lat, lng := 1.0, 2.0
	h.prov.details["ChIJ-new"] = model.ProviderPlace{PlaceID: "ChIJ-new", Name: "Thai Orchid", FormattedAddress: "1 Soi", Lat: &lat, Lng: &lng}
	h.prov.details["ChIJ-old"] = model.ProviderPlace{PlaceID: "ChIJ-old", Name: "Old Bistro", FormattedAddress: "2 Rue"}

	_, err := h.engine.ImportPlaces(ctx, []string{"ChIJ-old"})
	require.NoError(t, err)
	_, detailsBefore := h.prov.calls()

	res, err := h.engine.ImportPlaces(ctx, []string{"ChIJ-new", " ChIJ-old ", "ChIJ-missing", "ChIJ-new"})
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	assert.Equal(t, 1, res.Added)

	assert.Equal(t, model.ImportAdded, res.Items[0].Status)
	require.NotNil(t, res.Items[0].Place)
	assert.Equal(t, "Thai", res.Items[0].Place.Cuisine)
	assert.NotEmpty(t, res.Items[0].Place.MapsLink)

	assert.Equal(t, model.ImportExists, res.Items[1].Status)
	assert.Equal(t, model.ImportFailed, res.Items[2].Status)
	assert.Equal(t, "not_found", res.Items[2].Error)

	_, detailsAfter := h.prov.calls()
	assert.Equal(t, 2, detailsAfter-detailsBefore, "stored ids are not fetched again")
	assert.EqualValues(t, 4, h.quotaTotal(t), "1 + 3 reserved up front")
}

func TestImportPlaces_Validation(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()

	tooMany := make([]string, MaxImportBatch+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("id-%d", i)
	}
	_, err := h.engine.ImportPlaces(ctx, tooMany)
	assert.ErrorIs(t, err, model.ErrInvalid)

	_, err = h.engine.ImportPlaces(ctx, []string{"a", ""})
	assert.ErrorIs(t, err, model.ErrInvalid)

	_, err = h.engine.ImportPlaces(ctx, []string{"a", "b", "c", "d"})
	assert.ErrorIs(t, err, model.ErrQuotaExceeded)
	_, details := h.prov.calls()
	assert.Zero(t, details)
	assert.Zero(t, h.quotaTotal(t))
}
