package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AmirulAndalib/polars/internal/types"
	"github.com/AmirulAndalib/polars/internal/util/arrowtest"
)

// writeLines writes an NDJSON fixture file and returns its path.
func writeLines(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rows.ndjson")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestOpenNDJSON(t *testing.T) {
	t.Run("fields keep first appearance order", func(t *testing.T) {
		src, err := OpenNDJSON(writeLines(t,
			`{"b": 1, "a": "x"}`,
			`{"c": true, "b": 2}`,
		), 0)
		require.NoError(t, err)

		schema, err := src.Schema()
		require.NoError(t, err)
		require.Equal(t, types.NewSchema(
			types.Field{Name: "b", Type: types.Int64},
			types.Field{Name: "a", Type: types.String},
			types.Field{Name: "c", Type: types.Bool},
		), schema)
	})

	t.Run("mixed numbers widen to float", func(t *testing.T) {
		src, err := OpenNDJSON(writeLines(t,
			`{"v": 1, "w": 2.5}`,
			`{"v": 2.5, "w": 3}`,
		), 0)
		require.NoError(t, err)

		schema, err := src.Schema()
		require.NoError(t, err)
		require.Equal(t, types.NewSchema(
			types.Field{Name: "v", Type: types.Float64},
			types.Field{Name: "w", Type: types.Float64},
		), schema)
	})

	t.Run("null values defer typing", func(t *testing.T) {
		src, err := OpenNDJSON(writeLines(t,
			`{"v": null, "w": null}`,
			`{"v": "s"}`,
		), 0)
		require.NoError(t, err)

		schema, err := src.Schema()
		require.NoError(t, err)
		require.Equal(t, types.NewSchema(
			types.Field{Name: "v", Type: types.String},
			types.Field{Name: "w", Type: types.Null},
		), schema)
	})

	t.Run("inference window bounds the scan", func(t *testing.T) {
		src, err := OpenNDJSON(writeLines(t,
			`{"v": 1}`,
			`{"v": 2, "late": "x"}`,
		), 1)
		require.NoError(t, err)

		schema, err := src.Schema()
		require.NoError(t, err)
		require.Equal(t, types.NewSchema(types.Field{Name: "v", Type: types.Int64}), schema)
	})

	t.Run("conflicting types fail", func(t *testing.T) {
		_, err := OpenNDJSON(writeLines(t,
			`{"v": 1}`,
			`{"v": true}`,
		), 0)
		require.ErrorContains(t, err, `line 2: field "v": types i64 and bool cannot be unified`)
	})

	t.Run("nested values fail", func(t *testing.T) {
		_, err := OpenNDJSON(writeLines(t, `{"v": {"x": 1}}`), 0)
		require.ErrorContains(t, err, "is not supported")
	})

	t.Run("missing file fails", func(t *testing.T) {
		_, err := OpenNDJSON(filepath.Join(t.TempDir(), "nope.ndjson"), 0)
		require.ErrorContains(t, err, "open ndjson file")
	})
}

func TestNDJSONRead(t *testing.T) {
	// The blank line and the rows with missing or null fields exercise the
	// gap handling: both decode to null.
	path := writeLines(t,
		`{"id": 1, "tag": "a", "score": 1.5}`,
		`{"id": 2, "tag": "b", "score": null}`,
		``,
		`{"id": 3, "tag": null, "score": 2.5}`,
		`{"id": 4, "tag": "d"}`,
		`{"id": 5, "tag": "e", "score": 4.5}`,
	)
	data := arrowtest.Rows{
		{"id": int64(1), "tag": "a", "score": 1.5},
		{"id": int64(2), "tag": "b", "score": nil},
		{"id": int64(3), "tag": nil, "score": 2.5},
		{"id": int64(4), "tag": "d", "score": nil},
		{"id": int64(5), "tag": "e", "score": 4.5},
	}

	open := func(t *testing.T) *NDJSON {
		t.Helper()
		src, err := OpenNDJSON(path, 0)
		require.NoError(t, err)
		return src
	}

	t.Run("name is the file base name", func(t *testing.T) {
		require.Equal(t, "rows.ndjson", open(t).Name())
	})

	t.Run("reads all rows", func(t *testing.T) {
		alloc := checkedAllocator(t)

		r, err := open(t).Open(t.Context(), OpenOptions{Alloc: alloc, Limit: -1})
		require.NoError(t, err)
		require.Equal(t, data, readAll(t, r))
		require.NoError(t, r.Close())
	})

	t.Run("offset and limit slice rows", func(t *testing.T) {
		alloc := checkedAllocator(t)

		r, err := open(t).Open(t.Context(), OpenOptions{Alloc: alloc, Offset: 1, Limit: 2})
		require.NoError(t, err)
		require.Equal(t, data[1:3], readAll(t, r))
		require.NoError(t, r.Close())
	})

	t.Run("zero limit reads nothing", func(t *testing.T) {
		alloc := checkedAllocator(t)

		r, err := open(t).Open(t.Context(), OpenOptions{Alloc: alloc, Limit: 0})
		require.NoError(t, err)
		require.Empty(t, readAll(t, r))
		require.NoError(t, r.Close())
	})

	t.Run("batch size splits output", func(t *testing.T) {
		alloc := checkedAllocator(t)

		r, err := open(t).Open(t.Context(), OpenOptions{Alloc: alloc, Limit: -1, BatchSize: 2})
		require.NoError(t, err)
		require.Equal(t, []int64{2, 2, 1}, batchSizes(t, r))
		require.NoError(t, r.Close())
	})

	t.Run("projection restricts and reorders columns", func(t *testing.T) {
		alloc := checkedAllocator(t)

		r, err := open(t).Open(t.Context(), OpenOptions{Alloc: alloc, Columns: []string{"score", "id"}, Limit: -1})
		require.NoError(t, err)

		rec, err := r.Read(t.Context())
		require.NoError(t, err)
		require.Equal(t, []string{"score", "id"}, schemaNames(rec.Schema()))

		rows, err := arrowtest.RecordRows(rec)
		rec.Release()
		require.NoError(t, err)
		require.Equal(t, arrowtest.Row{"score": 1.5, "id": int64(1)}, rows[0])

		require.NoError(t, r.Close())
	})

	t.Run("unknown projected column fails", func(t *testing.T) {
		alloc := checkedAllocator(t)

		_, err := open(t).Open(t.Context(), OpenOptions{Alloc: alloc, Columns: []string{"missing"}, Limit: -1})
		require.EqualError(t, err, `column "missing" not found in source`)
	})

	t.Run("readers are independent", func(t *testing.T) {
		alloc := checkedAllocator(t)

		src := open(t)
		first, err := src.Open(t.Context(), OpenOptions{Alloc: alloc, Limit: -1})
		require.NoError(t, err)
		second, err := src.Open(t.Context(), OpenOptions{Alloc: alloc, Limit: -1})
		require.NoError(t, err)

		require.Equal(t, data, readAll(t, first))
		require.Equal(t, data, readAll(t, second))
		require.NoError(t, first.Close())
		require.NoError(t, second.Close())
	})

	t.Run("rows past the inference window must fit", func(t *testing.T) {
		alloc := checkedAllocator(t)

		src, err := OpenNDJSON(writeLines(t,
			`{"v": 1}`,
			`{"v": "oops"}`,
		), 1)
		require.NoError(t, err)

		r, err := src.Open(t.Context(), OpenOptions{Alloc: alloc, Limit: -1})
		require.NoError(t, err)
		_, err = r.Read(t.Context())
		require.ErrorContains(t, err, `line 2: column "v": cannot store string value in int64 column`)
		require.NoError(t, r.Close())
	})

	t.Run("fractional numbers do not fit integer columns", func(t *testing.T) {
		alloc := checkedAllocator(t)

		src, err := OpenNDJSON(writeLines(t,
			`{"v": 1}`,
			`{"v": 2.5}`,
		), 1)
		require.NoError(t, err)

		r, err := src.Open(t.Context(), OpenOptions{Alloc: alloc, Limit: -1})
		require.NoError(t, err)
		_, err = r.Read(t.Context())
		require.ErrorContains(t, err, `line 2: column "v": cannot store number 2.5 in i64 column`)
		require.NoError(t, r.Close())
	})
}
