package errs_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/powledger/node/business/web/errs"
	"github.com/powledger/node/foundation/blockchain/database"
	"github.com/stretchr/testify/require"
)

func TestTrusted(t *testing.T) {
	rejection := &database.RejectError{Kind: database.ErrDoubleSpend, Msg: "insufficient funds"}
	err := fmt.Errorf("submit: %w", errs.NewTrusted(rejection, http.StatusBadRequest))

	require.True(t, errs.IsTrusted(err))
	require.Equal(t, http.StatusBadRequest, errs.GetTrusted(err).Status)
	require.True(t, errors.Is(err, database.ErrDoubleSpend), "should match the rejection kind through the wrapper")
	require.Equal(t, rejection.Error(), errs.GetTrusted(err).Error())

	require.False(t, errs.IsTrusted(errors.New("boom")))
	require.Nil(t, errs.GetTrusted(errors.New("boom")))
}
