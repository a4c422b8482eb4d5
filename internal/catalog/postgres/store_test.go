package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, "", "")
	require.NoError(t, err)
	return store, mock
}

func TestListSubjectsWines(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	price := int64(45000)
	mock.ExpectQuery(`FROM wines\s+WHERE coalesce\(image_url, ''\) = '' OR price IS NULL`).
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name_ko", "name_en", "homepage", "image_url", "price"}).
			AddRow("w1", "몬테스 알파", "Montes Alpha", "https://montes.cl", "", &price).
			AddRow("w2", "샤또 마고", "", "", "https://cdn/x.jpg", (*int64)(nil)))

	subjects, err := store.ListSubjects(context.Background(), enrich.SubjectQuery{
		Kind:        enrich.KindWine,
		OnlyMissing: []enrich.ContentType{enrich.ContentLabel, enrich.ContentPrice},
		Limit:       10,
	})
	require.NoError(t, err)
	require.Len(t, subjects, 2)
	assert.Equal(t, "Montes Alpha", subjects[0].Name.Secondary)
	assert.Equal(t, "https://montes.cl", subjects[0].Hints.Homepage)
	require.NotNil(t, subjects[0].Existing.Price)
	assert.Equal(t, int64(45000), *subjects[0].Existing.Price)
	assert.True(t, subjects[1].Missing(enrich.ContentPrice))
	assert.False(t, subjects[1].Missing(enrich.ContentLabel))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListSubjectsWineriesWithoutLimit(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM wineries\s+ORDER BY id`).
		WithArgs(nil).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name_ko", "name_en", "homepage", "slug", "logo_url", "photos"}).
			AddRow("y1", "몬테스", "Montes", "https://montes.cl", "montes", "", []string{"https://a/1.jpg"}))

	subjects, err := store.ListSubjects(context.Background(), enrich.SubjectQuery{Kind: enrich.KindWinery})
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, enrich.KindWinery, subjects[0].Kind)
	assert.Equal(t, "montes", subjects[0].Hints.Slug)
	assert.Equal(t, []string{"https://a/1.jpg"}, subjects[0].Existing.Photos)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListSubjectsQueryError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM wines").WithArgs(nil).WillReturnError(errors.New("connection reset"))

	_, err := store.ListSubjects(context.Background(), enrich.SubjectQuery{Kind: enrich.KindWine})
	require.Error(t, err)

	_, err = store.ListSubjects(context.Background(), enrich.SubjectQuery{Kind: "vineyard"})
	require.Error(t, err)
}

func TestPersistOverwritesFields(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE wines SET image_url = \$2`).
		WithArgs("w1", "https://storage.googleapis.com/b/wines/w1/label.jpg").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE wines SET price = \$2`).
		WithArgs("w1", int64(45000)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE wineries SET logo_url = \$2`).
		WithArgs("y1", "https://x/logo.png").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ctx := context.Background()
	require.NoError(t, store.Persist(ctx, "w1", enrich.ContentLabel, "https://storage.googleapis.com/b/wines/w1/label.jpg"))
	require.NoError(t, store.Persist(ctx, "w1", enrich.ContentPrice, "45000"))
	require.NoError(t, store.Persist(ctx, "y1", enrich.ContentLogo, "https://x/logo.png"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistMergesPhotos(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE wineries SET photos = ARRAY\(\s+SELECT u FROM unnest\(coalesce\(photos, '\{\}'::text\[\]\) \|\| \$2::text\[\]\) WITH ORDINALITY`).
		WithArgs("y1", []string{"https://x/cellar.jpg"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.Persist(context.Background(), "y1", enrich.ContentWineryPhoto, "https://x/cellar.jpg"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistMissingRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE wines").
		WithArgs("ghost", "https://x/a.jpg").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.Persist(context.Background(), "ghost", enrich.ContentLabel, "https://x/a.jpg")
	require.Error(t, err)
	assert.ErrorIs(t, err, enrich.ErrSubjectNotFound)
	assert.ErrorIs(t, err, enrich.ErrCatalogWrite)
}

func TestPersistErrors(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE wines").
		WithArgs("w1", "https://x/a.jpg").
		WillReturnError(errors.New("deadlock detected"))

	err := store.Persist(context.Background(), "w1", enrich.ContentLabel, "https://x/a.jpg")
	var ce *enrich.CatalogError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "w1", ce.SubjectID)
	assert.Equal(t, enrich.ContentLabel, ce.ContentType)

	err = store.Persist(context.Background(), "w1", enrich.ContentPrice, "about 40k")
	assert.ErrorIs(t, err, enrich.ErrCatalogWrite)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolValidatesTables(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "wines; DROP TABLE x", "")
	require.Error(t, err)
	_, err = NewWithPool(nil, "", "")
	require.Error(t, err)
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}
