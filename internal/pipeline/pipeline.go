// Package pipeline orchestrates the document-sealing flow: scan the
// plaintext for sensitive entities, mask the display variant, seal it under
// the owner's passphrase, upload the blob, notarize the fingerprint on the
// ledger and append the listing to the identity index.
//
// Each stage's durable artifacts survive on the Receipt, so a failed
// submission resumes from the first incomplete stage instead of repeating
// committed work. A notarization already on the ledger is never reversed;
// later failures are reported, not compensated.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/omnivault/omnivault/internal/index"
	"github.com/omnivault/omnivault/internal/ledger"
	"github.com/omnivault/omnivault/internal/scan"
	"github.com/omnivault/omnivault/internal/seal"
	"github.com/omnivault/omnivault/internal/storage"
)

// Stage identifies a pipeline state. Stages are ordered; a Receipt's
// Completed field is the last stage whose side effects are durable.
type Stage int

const (
	StageScanned Stage = iota
	StageMasked
	StageSealed
	StageUploaded
	StageNotarized
	StageIndexed
)

var stageNames = [...]string{
	StageScanned:   "scanned",
	StageMasked:    "masked",
	StageSealed:    "sealed",
	StageUploaded:  "uploaded",
	StageNotarized: "notarized",
	StageIndexed:   "indexed",
}

func (s Stage) String() string {
	if s < StageScanned || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Submission is one user request to list a document.
type Submission struct {
	// Text is the document plaintext.
	Text string
	// FileName labels the asset; it feeds the storage key.
	FileName string
	// FileType is the original document MIME type, recorded in the index.
	FileType string
	// Passphrase seals the document. Never persisted.
	Passphrase string
	// Price is the decimal native-token asking price, e.g. "0.05".
	Price string
	// Owner is the authenticated identity email.
	Owner string
	// Wallet is the owner's ledger address.
	Wallet string
	// MaskEnabled selects whether detected entities are redacted before
	// sealing.
	MaskEnabled bool
}

func (s Submission) validate() error {
	if s.Text == "" {
		return errors.New("document text cannot be empty")
	}
	if s.Passphrase == "" {
		return errors.New("passphrase cannot be empty")
	}
	if s.FileName == "" {
		return errors.New("file name cannot be empty")
	}
	if s.Owner == "" {
		return errors.New("owner identity cannot be empty")
	}
	return nil
}

// Receipt accumulates the artifacts of completed stages. On success it is
// the caller's record of the listing; on failure it rides the StageError so
// Resume can pick up where the submission stopped.
type Receipt struct {
	// Scan is the detection result for the submitted text.
	Scan scan.Result `json:"scan"`
	// Display is the text variant that was sealed (masked when enabled).
	Display string `json:"display"`
	// Sealed is the encrypted document. Its ContentHash is the asset ID.
	Sealed *seal.SealedDocument `json:"sealed,omitempty"`
	// StorageKey locates the uploaded blob. Set once Uploaded completes;
	// resuming a notarization reuses it rather than re-uploading.
	StorageKey string `json:"storageKey,omitempty"`
	// TxHash is the notarization transaction hash.
	TxHash string `json:"txHash,omitempty"`
	// Completed is the last durable stage.
	Completed Stage `json:"completed"`
}

// Storage signs per-object upload credentials.
type Storage interface {
	SignUpload(ctx context.Context, fileName, contentType string) (*storage.UploadCredential, error)
}

// Transfer moves sealed bytes to a signed URL.
type Transfer interface {
	Put(ctx context.Context, url string, blob []byte, contentType string) error
}

// Ledger notarizes content fingerprints.
type Ledger interface {
	Notarize(ctx context.Context, contentHash, storageKey string, priceWei *big.Int) (string, error)
}

// Index appends listing records per identity.
type Index interface {
	Append(ctx context.Context, rec index.ListingRecord) error
}

// Pipeline drives one submission through all stages. Safe for concurrent
// use; concurrent submissions share nothing but the detector's cached
// sector model.
type Pipeline struct {
	detector *scan.Detector
	storage  Storage
	transfer Transfer
	ledger   Ledger
	index    Index
	metrics  *Metrics
	timeNow  func() time.Time
}

// New creates a Pipeline. metrics may be nil.
func New(detector *scan.Detector, st Storage, tr Transfer, lg Ledger, ix Index, m *Metrics) *Pipeline {
	return &Pipeline{
		detector: detector,
		storage:  st,
		transfer: tr,
		ledger:   lg,
		index:    ix,
		metrics:  m,
		timeNow:  time.Now,
	}
}

// Run executes the full pipeline for one submission. On failure the returned
// error is a *StageError whose Receipt holds everything already committed.
func (p *Pipeline) Run(ctx context.Context, sub Submission) (*Receipt, error) {
	start := p.timeNow()

	receipt := &Receipt{}
	if err := sub.validate(); err != nil {
		return nil, p.fail(StageScanned, KindInputValidation, err, receipt)
	}
	if _, err := ledger.ParseEther(sub.Price); err != nil {
		return nil, p.fail(StageScanned, KindInputValidation, err, receipt)
	}

	receipt.Scan = p.detector.Scan(sub.Text)
	receipt.Completed = StageScanned
	p.metrics.IncStage(StageScanned.String(), StatusSuccess)

	receipt.Display = scan.Mask(sub.Text, receipt.Scan.Entities, sub.MaskEnabled)
	receipt.Completed = StageMasked
	p.metrics.IncStage(StageMasked.String(), StatusSuccess)

	sealed, err := seal.Seal(receipt.Display, sub.Passphrase)
	if err != nil {
		kind := KindCryptoUnavailable
		if errors.Is(err, seal.ErrEmptyPassphrase) {
			kind = KindInputValidation
		}
		return nil, p.fail(StageSealed, kind, err, receipt)
	}
	receipt.Sealed = sealed
	receipt.Completed = StageSealed
	p.metrics.IncStage(StageSealed.String(), StatusSuccess)

	if err := p.resumeFrom(ctx, sub, receipt); err != nil {
		return nil, err
	}

	p.metrics.ObserveDuration(p.timeNow().Sub(start).Seconds())
	return receipt, nil
}

// Resume re-enters a failed submission at its first incomplete stage. The
// receipt must carry the sealed document; a submission that never sealed has
// no durable state and goes back through Run. Retrying notarization reuses
// the already-uploaded storage key, and retrying the index write never
// touches the ledger again.
func (p *Pipeline) Resume(ctx context.Context, receipt *Receipt, sub Submission) (*Receipt, error) {
	if receipt == nil || receipt.Sealed == nil {
		return p.Run(ctx, sub)
	}
	if receipt.Completed >= StageIndexed {
		return receipt, nil
	}
	if err := p.resumeFrom(ctx, sub, receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

// resumeFrom drives the collaborator stages, skipping any whose artifacts
// the receipt already holds.
func (p *Pipeline) resumeFrom(ctx context.Context, sub Submission, receipt *Receipt) error {
	if receipt.Completed < StageUploaded {
		cred, err := p.storage.SignUpload(ctx, sub.FileName, storage.MIMEOctetStream)
		if err != nil {
			return p.fail(StageUploaded, KindNetworkFailure, err, receipt)
		}
		if err := p.transfer.Put(ctx, cred.URL, receipt.Sealed.Blob, storage.MIMEOctetStream); err != nil {
			return p.fail(StageUploaded, KindNetworkFailure, err, receipt)
		}
		receipt.StorageKey = cred.Key
		receipt.Completed = StageUploaded
		p.metrics.IncStage(StageUploaded.String(), StatusSuccess)
	}

	if receipt.Completed < StageNotarized {
		priceWei, err := ledger.ParseEther(sub.Price)
		if err != nil {
			return p.fail(StageNotarized, KindInputValidation, err, receipt)
		}
		txHash, err := p.ledger.Notarize(ctx, receipt.Sealed.ContentHash, receipt.StorageKey, priceWei)
		if err != nil {
			return p.fail(StageNotarized, ledgerKind(err), err, receipt)
		}
		receipt.TxHash = txHash
		receipt.Completed = StageNotarized
		p.metrics.IncStage(StageNotarized.String(), StatusSuccess)
	}

	if receipt.Completed < StageIndexed {
		rec := index.ListingRecord{
			Owner:         sub.Owner,
			AssetID:       receipt.Sealed.ContentHash,
			WalletAddress: sub.Wallet,
			FileName:      sub.FileName,
			FileType:      sub.FileType,
			StorageKey:    receipt.StorageKey,
			Category:      receipt.Scan.Sector,
			Price:         sub.Price,
			Action:        index.ActionListed,
			Timestamp:     p.timeNow().UTC(),
		}
		if err := p.index.Append(ctx, rec); err != nil {
			// The asset is live and purchasable on the ledger but not
			// visible in the owner's asset list until this retries.
			return p.fail(StageIndexed, KindPartialCommit, err, receipt)
		}
		receipt.Completed = StageIndexed
		p.metrics.IncStage(StageIndexed.String(), StatusSuccess)
	}

	return nil
}

// ledgerKind maps ledger sentinels to failure kinds.
func ledgerKind(err error) Kind {
	switch {
	case errors.Is(err, ledger.ErrWalletUnavailable):
		return KindWalletUnavailable
	case errors.Is(err, ledger.ErrWrongNetwork):
		return KindWrongNetwork
	case errors.Is(err, ledger.ErrTransactionRejected):
		return KindTransactionRejected
	default:
		return KindNetworkFailure
	}
}
