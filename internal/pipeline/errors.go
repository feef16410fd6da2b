package pipeline

import "fmt"

// Kind classifies a pipeline failure for the caller. The kind tells the
// presentation layer what happened; the receipt on the error tells it what
// survived.
type Kind string

const (
	// KindInputValidation covers missing or malformed submission fields.
	KindInputValidation Kind = "input_validation"
	// KindCryptoUnavailable covers sealing failures from the crypto provider.
	KindCryptoUnavailable Kind = "crypto_unavailable"
	// KindNetworkFailure covers unreachable storage, index or compute.
	KindNetworkFailure Kind = "network_failure"
	// KindWalletUnavailable means no signing capability is present.
	KindWalletUnavailable Kind = "wallet_unavailable"
	// KindWrongNetwork means the ledger answered on an unexpected chain.
	KindWrongNetwork Kind = "wrong_network"
	// KindTransactionRejected means the ledger transaction reverted or was
	// declined.
	KindTransactionRejected Kind = "transaction_rejected"
	// KindPartialCommit means the asset is committed on-ledger but a later
	// step failed, so the index does not reflect it yet.
	KindPartialCommit Kind = "partial_commit"
)

// StageError reports which stage failed and with what kind. Receipt carries
// the artifacts of every completed stage so the submission can be resumed
// without repeating committed work.
type StageError struct {
	Stage   Stage
	Kind    Kind
	Err     error
	Receipt *Receipt
}

func (e *StageError) Error() string {
	return fmt.Sprintf("sealing pipeline: %s stage failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func (p *Pipeline) fail(stage Stage, kind Kind, err error, receipt *Receipt) error {
	p.metrics.IncStage(stage.String(), StatusFailure)
	p.metrics.IncFailures(stage.String(), string(kind))
	return &StageError{Stage: stage, Kind: kind, Err: err, Receipt: receipt}
}
