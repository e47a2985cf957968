package dispatch

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lava-payment/lavapay-go/registry"
	"github.com/lava-payment/lavapay-go/types"
)

type spySubmitter struct {
	calls []types.TransferRequest
	txID  string
	err   error
}

func (s *spySubmitter) SubmitTransfer(ctx context.Context, req types.TransferRequest) (string, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return "", s.err
	}
	return s.txID, nil
}

func testInvoice(chainID int64, amount string) *types.Invoice {
	return &types.Invoice{
		Version:   types.ProtocolVersion,
		ChainID:   chainID,
		Token:     types.TokenSymbol,
		Recipient: "0x9fD042a18E90Ce326073fA70F111DC9D798D9a52",
		Amount:    amount,
		ID:        "inv-1",
		ExpiresAt: time.Now().Add(time.Minute).UnixMilli(),
		Memo:      "do not transmit",
	}
}

func TestDispatchSubmitsExactlyOneTransfer(t *testing.T) {
	spy := &spySubmitter{txID: "0xabc"}
	d := NewDispatcher(registry.Default(), spy, SponsorshipConfig{}, nil, nil)

	inv := testInvoice(registry.PlasmaMainnetChainID, "1.5")
	handle, err := d.Dispatch(context.Background(), inv, registry.PlasmaMainnetChainID, types.FeeModeStandard)
	require.NoError(t, err)
	require.Len(t, spy.calls, 1)

	req := spy.calls[0]
	assert.Equal(t, "0xabc", handle.TxID)
	assert.Equal(t, int64(registry.PlasmaMainnetChainID), handle.ChainID)
	assert.False(t, handle.SponsorshipDowngraded)

	// The transfer targets the token contract with recipient and
	// base-unit amount only. Invoice id and memo stay local.
	assert.Equal(t, "0x9fD042a18E90Ce326073fA70F111DC9D798D9a52", req.RecipientAddress)
	assert.Equal(t, big.NewInt(1_500_000), req.AmountBaseUnits)
	assert.NotEqual(t, req.RecipientAddress, req.TokenContractAddress)
	assert.NotEmpty(t, req.TokenContractAddress)
}

func TestDispatchNetworkMismatchNeverSubmits(t *testing.T) {
	spy := &spySubmitter{txID: "0xabc"}
	d := NewDispatcher(registry.Default(), spy, SponsorshipConfig{}, nil, nil)

	inv := testInvoice(registry.PlasmaMainnetChainID, "1")
	_, err := d.Dispatch(context.Background(), inv, registry.PlasmaTestnetChainID, types.FeeModeStandard)
	require.Error(t, err)
	assert.Equal(t, types.ErrNetworkMismatch, types.ErrorCode(err))
	assert.Empty(t, spy.calls)

	pe := err.(*types.PayError)
	assert.Equal(t, map[string]int64{
		"walletChainId":  registry.PlasmaTestnetChainID,
		"invoiceChainId": registry.PlasmaMainnetChainID,
	}, pe.Data)
}

func TestDispatchUnsupportedNetwork(t *testing.T) {
	spy := &spySubmitter{}
	d := NewDispatcher(registry.Default(), spy, SponsorshipConfig{}, nil, nil)

	_, err := d.Dispatch(context.Background(), testInvoice(1, "1"), 1, types.FeeModeStandard)
	require.Error(t, err)
	assert.Equal(t, types.ErrUnsupportedNetwork, types.ErrorCode(err))
	assert.Empty(t, spy.calls)
}

func TestDispatchSponsoredDowngrade(t *testing.T) {
	t.Run("unavailable sponsorship degrades to standard", func(t *testing.T) {
		spy := &spySubmitter{txID: "0xabc"}
		d := NewDispatcher(registry.Default(), spy, SponsorshipConfig{}, nil, nil)

		handle, err := d.Dispatch(
			context.Background(),
			testInvoice(registry.PlasmaMainnetChainID, "1"),
			registry.PlasmaMainnetChainID,
			types.FeeModeSponsored,
		)
		require.NoError(t, err)
		assert.True(t, handle.SponsorshipDowngraded)
		assert.Equal(t, types.FeeModeStandard, handle.FeeMode)
		require.Len(t, spy.calls, 1)
		assert.Equal(t, types.FeeModeStandard, spy.calls[0].FeeMode)
	})

	t.Run("available sponsorship is kept", func(t *testing.T) {
		spy := &spySubmitter{txID: "0xabc"}
		sponsorship := SponsorshipConfig{Enabled: true, RelayerURL: "https://relayer.example.com"}
		d := NewDispatcher(registry.Default(), spy, sponsorship, nil, nil)

		handle, err := d.Dispatch(
			context.Background(),
			testInvoice(registry.PlasmaMainnetChainID, "1"),
			registry.PlasmaMainnetChainID,
			types.FeeModeSponsored,
		)
		require.NoError(t, err)
		assert.False(t, handle.SponsorshipDowngraded)
		assert.Equal(t, types.FeeModeSponsored, handle.FeeMode)
	})

	t.Run("enabled without relayer URL still degrades", func(t *testing.T) {
		spy := &spySubmitter{txID: "0xabc"}
		d := NewDispatcher(registry.Default(), spy, SponsorshipConfig{Enabled: true}, nil, nil)

		handle, err := d.Dispatch(
			context.Background(),
			testInvoice(registry.PlasmaMainnetChainID, "1"),
			registry.PlasmaMainnetChainID,
			types.FeeModeSponsored,
		)
		require.NoError(t, err)
		assert.True(t, handle.SponsorshipDowngraded)
	})
}

func TestDispatchSubmissionRejected(t *testing.T) {
	spy := &spySubmitter{err: errors.New("user rejected the request")}
	d := NewDispatcher(registry.Default(), spy, SponsorshipConfig{}, nil, nil)

	_, err := d.Dispatch(
		context.Background(),
		testInvoice(registry.PlasmaMainnetChainID, "1"),
		registry.PlasmaMainnetChainID,
		types.FeeModeStandard,
	)
	require.Error(t, err)
	assert.Equal(t, types.ErrSubmissionRejected, types.ErrorCode(err))
	assert.Equal(t, "user rejected the request", err.Error())
	// Exactly one submission, no retries.
	assert.Len(t, spy.calls, 1)
}

func TestDispatchWithoutSubmitter(t *testing.T) {
	d := NewDispatcher(registry.Default(), nil, SponsorshipConfig{}, nil, nil)

	_, err := d.Dispatch(
		context.Background(),
		testInvoice(registry.PlasmaMainnetChainID, "1"),
		registry.PlasmaMainnetChainID,
		types.FeeModeStandard,
	)
	require.Error(t, err)
	assert.Equal(t, types.ErrConfigError, types.ErrorCode(err))
}

func TestBuildTransferRequestAmounts(t *testing.T) {
	entry, err := registry.Default().Resolve(registry.PlasmaMainnetChainID)
	require.NoError(t, err)

	t.Run("six decimal places fit exactly", func(t *testing.T) {
		req, err := buildTransferRequest(testInvoice(entry.ChainID, "0.000001"), entry, types.FeeModeStandard)
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(1), req.AmountBaseUnits)
	})

	t.Run("seven decimal places are rejected", func(t *testing.T) {
		_, err := buildTransferRequest(testInvoice(entry.ChainID, "0.0000001"), entry, types.FeeModeStandard)
		require.Error(t, err)
		assert.Equal(t, types.ErrInvalidAmount, types.ErrorCode(err))
	})

	t.Run("non-positive amounts are rejected", func(t *testing.T) {
		for _, amount := range []string{"0", "-1", "x"} {
			_, err := buildTransferRequest(testInvoice(entry.ChainID, amount), entry, types.FeeModeStandard)
			require.Error(t, err, "amount %q", amount)
			assert.Equal(t, types.ErrInvalidAmount, types.ErrorCode(err))
		}
	})
}
