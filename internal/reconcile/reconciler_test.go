package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablemirror/tablemirror/internal/catalog"
)

type recordingApplier struct {
	statements []string
	err        error
}

func (r *recordingApplier) ApplyDDL(_ context.Context, statements []string) error {
	if r.err != nil {
		return r.err
	}
	r.statements = append(r.statements, statements...)
	return nil
}

func srcDescriptor() *catalog.TableDescriptor {
	return &catalog.TableDescriptor{
		Schema: "app",
		Name:   "orders",
		Columns: []catalog.Column{
			{Name: "id", NativeType: "NUMBER(10)", DestType: "numeric", Nullable: false},
			{Name: "status", NativeType: "VARCHAR2(20)", DestType: "text", Nullable: true},
		},
		Key: &catalog.KeySet{Columns: []string{"id"}, Primary: true},
	}
}

func TestReconciler_CreatesMissingTable(t *testing.T) {
	t.Parallel()

	applier := &recordingApplier{}
	r := New(applier, NewMapper(nil))

	res, err := r.Reconcile(context.Background(), srcDescriptor(), nil, "public")
	require.NoError(t, err)
	assert.True(t, res.Created)
	require.Len(t, applier.statements, 1)
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "public"."orders" (`+
			`"id" numeric NOT NULL, "status" text, PRIMARY KEY ("id"))`,
		applier.statements[0])
}

func TestReconciler_CreateWithoutPrimaryKey(t *testing.T) {
	t.Parallel()

	src := srcDescriptor()
	src.Key = &catalog.KeySet{Columns: []string{"id"}} // unique fallback, not primary

	applier := &recordingApplier{}
	r := New(applier, NewMapper(nil))

	res, err := r.Reconcile(context.Background(), src, nil, "public")
	require.NoError(t, err)
	assert.True(t, res.Created)
	require.Len(t, applier.statements, 1)
	assert.NotContains(t, applier.statements[0], "PRIMARY KEY")
}

func TestReconciler_AddsMissingColumns(t *testing.T) {
	t.Parallel()

	dst := &catalog.TableDescriptor{
		Schema: "public",
		Name:   "orders",
		Columns: []catalog.Column{
			{Name: "id", NativeType: "numeric"},
		},
	}

	applier := &recordingApplier{}
	r := New(applier, NewMapper(nil))

	res, err := r.Reconcile(context.Background(), srcDescriptor(), dst, "public")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, []string{"status"}, res.AddedColumns)
	require.Len(t, applier.statements, 1)
	// Added columns are always nullable; existing rows have no value.
	assert.Equal(t,
		`ALTER TABLE "public"."orders" ADD COLUMN "status" text`,
		applier.statements[0])
}

func TestReconciler_FlagsDriftWithoutActing(t *testing.T) {
	t.Parallel()

	dst := &catalog.TableDescriptor{
		Schema: "public",
		Name:   "orders",
		Columns: []catalog.Column{
			{Name: "id", NativeType: "integer"}, // narrower than mapped numeric
			{Name: "status", NativeType: "text"},
			{Name: "legacy", NativeType: "text"}, // destination-only
		},
	}

	applier := &recordingApplier{}
	r := New(applier, NewMapper(nil))

	res, err := r.Reconcile(context.Background(), srcDescriptor(), dst, "public")
	require.NoError(t, err)
	assert.Empty(t, applier.statements, "drift must never produce DDL")
	require.Len(t, res.Flagged, 2)
	assert.Contains(t, res.Flagged[0], "id")
	assert.Contains(t, res.Flagged[1], "legacy")
}

func TestReconciler_NoChangesNeeded(t *testing.T) {
	t.Parallel()

	dst := &catalog.TableDescriptor{
		Schema: "public",
		Name:   "orders",
		Columns: []catalog.Column{
			{Name: "id", NativeType: "numeric"},
			{Name: "status", NativeType: "text"},
		},
	}

	applier := &recordingApplier{}
	r := New(applier, NewMapper(nil))

	res, err := r.Reconcile(context.Background(), srcDescriptor(), dst, "public")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Empty(t, res.AddedColumns)
	assert.Empty(t, res.Flagged)
	assert.Empty(t, applier.statements)
}

func TestReconciler_WrapsApplyFailure(t *testing.T) {
	t.Parallel()

	applier := &recordingApplier{err: errors.New("permission denied")}
	r := New(applier, NewMapper(nil))

	_, err := r.Reconcile(context.Background(), srcDescriptor(), nil, "public")
	require.Error(t, err)

	var rerr *ReconciliationError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "orders", rerr.Table)
	assert.ErrorContains(t, err, "permission denied")
}

func TestTypesCompatible(t *testing.T) {
	t.Parallel()

	assert.True(t, typesCompatible("numeric", "numeric"))
	assert.True(t, typesCompatible("NUMERIC(10,2)", "numeric"))
	assert.True(t, typesCompatible("text", "timestamp"), "text holds anything")
	assert.True(t, typesCompatible("character varying", "numeric"))
	assert.False(t, typesCompatible("integer", "numeric"))
}
