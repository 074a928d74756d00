package httphandler_test

import (
	"net/url"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/claimservice/internal/domain/entity"
	"github.com/lllypuk/claimservice/internal/domain/errs"
	"github.com/lllypuk/claimservice/internal/domain/model"
	httphandler "github.com/lllypuk/claimservice/internal/handler/http"
)

func TestDecodePatch(t *testing.T) {
	// Act
	patch, err := httphandler.DecodePatch(model.Claim, []byte(
		`{"policyNumber":"P-1","claimDate":null,"customer":"cust-1","reviews":["r1",{"id":"r2"}]}`))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"claimDate", "customer", "policyNumber", "reviews"}, patch.Names())

	v, present := patch.Field("claimDate").Get()
	assert.True(t, present)
	assert.Nil(t, v)
	assert.False(t, patch.Field("claimAmount").IsPresent())
	assert.Equal(t, "cust-1", patch.Field("customer").OrElse(nil))
	assert.Equal(t, []string{"r1", "r2"}, patch.Field("reviews").OrElse(nil))
}

func TestDecodePatch_RelationForms(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    any
		wantErr bool
	}{
		{name: "string id", body: `{"claim":"c1"}`, want: "c1"},
		{name: "object id", body: `{"claim":{"id":"c1"}}`, want: "c1"},
		{name: "null", body: `{"claim":null}`, want: nil},
		{name: "object without id", body: `{"claim":{}}`, wantErr: true},
		{name: "number", body: `{"claim":7}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch, err := httphandler.DecodePatch(model.Review, []byte(tt.body))

			if tt.wantErr {
				require.ErrorIs(t, err, errs.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			v, present := patch.Field("claim").Get()
			assert.True(t, present)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestDecodePatch_Rejects(t *testing.T) {
	for _, body := range []string{``, `null`, `"x"`, `{"unknown":1}`, `{"reviews":null}`, `{"reviews":"r1"}`} {
		_, err := httphandler.DecodePatch(model.Claim, []byte(body))

		require.ErrorIs(t, err, errs.ErrInvalidInput, body)
	}

	var fieldErr *entity.FieldError
	_, err := httphandler.DecodePatch(model.Claim, []byte(`{"unknown":1}`))
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "unknown", fieldErr.Field)
}

func TestDecodeIDs(t *testing.T) {
	ids, err := httphandler.DecodeIDs([]byte(`["a",{"id":"b"}]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	ids, err = httphandler.DecodeIDs([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, ids)

	for _, body := range []string{`{"id":"a"}`, `[1]`, `[{"name":"a"}]`} {
		_, err = httphandler.DecodeIDs([]byte(body))
		require.ErrorIs(t, err, errs.ErrInvalidInput, body)
	}
}

func TestRecordJSON(t *testing.T) {
	// Arrange
	stamp := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	rec := entity.NewRecord("c1")
	rec.CreatedAt, rec.UpdatedAt = stamp, stamp
	rec.Values["policyNumber"] = "P-1"
	rec.Refs["customer"] = "cust-1"
	rec.Children["reviews"] = []string{"r1"}

	// Act
	data, err := json.Marshal(httphandler.RecordJSON{Schema: model.Claim, Record: rec})

	// Assert
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id":"c1",
		"createdAt":"2024-05-06T07:08:09Z",
		"updatedAt":"2024-05-06T07:08:09Z",
		"claimAmount":null,
		"claimDate":null,
		"policyNumber":"P-1",
		"customer":{"id":"cust-1"},
		"reviews":[{"id":"r1"}]
	}`, string(data))
}

func TestParseFindManyArgs(t *testing.T) {
	q := url.Values{
		"skip":                 {"2"},
		"take":                 {"5"},
		"sortBy":               {"claimAmount:desc"},
		"where.claimAmount.gt": {"10"},
		"where.customer":       {"cust-1"},
		"where.reviews":        {"r1, r2"},
		"unrelated":            {"ignored"},
	}

	args, err := httphandler.ParseFindManyArgs(model.Claim, q)

	require.NoError(t, err)
	require.NotNil(t, args.Skip)
	require.NotNil(t, args.Take)
	assert.Equal(t, 2, *args.Skip)
	assert.Equal(t, 5, *args.Take)
	assert.Equal(t, "claimAmount:desc", args.SortBy)
	assert.ElementsMatch(t, []entity.Condition{
		{Field: "claimAmount", Op: entity.OpGt, Value: 10.0},
		{Field: "customer", Op: entity.OpEq, Value: "cust-1"},
	}, args.Where.Conditions)
	assert.Equal(t, map[string][]string{"reviews": {"r1", "r2"}}, args.Where.Related)
}

func TestParseWhere_Errors(t *testing.T) {
	for _, q := range []url.Values{
		{"where.claimAmount": {"abc"}},
		{"where.claimDate.gt": {"yesterday"}},
		{"where.nope": {"1"}},
		{"where.claimAmount.like": {"1"}},
		{"where.reviews.gt": {"r1"}},
		{"take": {"many"}},
	} {
		_, err := httphandler.ParseFindManyArgs(model.Claim, q)

		require.ErrorIs(t, err, errs.ErrInvalidInput, q.Encode())
	}
}
