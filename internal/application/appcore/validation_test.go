package appcore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/claimservice/internal/application/appcore"
	"github.com/lllypuk/claimservice/internal/domain/errs"
)

func TestValidateNonNegative(t *testing.T) {
	require.NoError(t, appcore.ValidateNonNegative("skip", 0))
	require.NoError(t, appcore.ValidateNonNegative("skip", 5))
	assert.ErrorIs(t, appcore.ValidateNonNegative("skip", -1), errs.ErrInvalidInput)
}

func TestValidateEnum(t *testing.T) {
	require.NoError(t, appcore.ValidateEnum("dir", "asc", []string{"asc", "desc"}))
	assert.ErrorIs(t, appcore.ValidateEnum("dir", "up", []string{"asc", "desc"}), errs.ErrInvalidInput)
}
