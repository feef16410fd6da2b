package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"regexp"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/omnivault/omnivault/internal/audit"
	"github.com/omnivault/omnivault/internal/index"
	"github.com/omnivault/omnivault/internal/ledger"
	"github.com/omnivault/omnivault/internal/middleware"
)

// marketplaceCacheKey is the go-cache key for the LISTED records snapshot.
const marketplaceCacheKey = "marketplace:listed"

// MarketplaceCacheTTL bounds how stale the marketplace snapshot can be.
const MarketplaceCacheTTL = 30 * time.Second

// contentHashPattern matches a lowercase hex SHA-256 fingerprint.
var contentHashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// LedgerClient is the slice of the ledger client the marketplace needs.
type LedgerClient interface {
	Purchase(ctx context.Context, contentHash string, priceWei *big.Int) (string, error)
	CheckAccess(ctx context.Context, contentHash, account string) (bool, error)
	GetListing(ctx context.Context, contentHash string) (*ledger.Listing, error)
}

// PurchaseRequest is the body for POST /purchases. The buyer pays the
// listing's on-ledger asking price; the body names only the asset.
type PurchaseRequest struct {
	ContentHash string `json:"content_hash"`
}

// PurchaseResponse is the receipt for a completed purchase.
type PurchaseResponse struct {
	TxHash      string `json:"tx_hash"`
	ContentHash string `json:"content_hash"`
	Price       string `json:"price"`
}

// ListingResponse is the JSON shape of an on-ledger listing.
type ListingResponse struct {
	ContentHash string    `json:"content_hash"`
	StorageKey  string    `json:"storage_key"`
	Owner       string    `json:"owner"`
	Timestamp   time.Time `json:"timestamp"`
	Price       string    `json:"price"`
	ForSale     bool      `json:"for_sale"`
}

// AssetsResponse wraps a slice of index records.
type AssetsResponse struct {
	Assets []index.ListingRecord `json:"assets"`
}

// AccessResponse reports whether an identity may open an asset.
type AccessResponse struct {
	ContentHash string `json:"content_hash"`
	Access      bool   `json:"access"`
}

// MarketplaceHandlers holds dependencies for marketplace and asset handlers.
type MarketplaceHandlers struct {
	index     index.Repository
	ledger    LedgerClient
	cache     *gocache.Cache
	auditRepo audit.Repository
}

// NewMarketplaceHandlers creates a new MarketplaceHandlers instance. A nil
// cache disables marketplace snapshot caching.
func NewMarketplaceHandlers(idx index.Repository, lg LedgerClient, cache *gocache.Cache, auditRepo audit.Repository) *MarketplaceHandlers {
	return &MarketplaceHandlers{
		index:     idx,
		ledger:    lg,
		cache:     cache,
		auditRepo: auditRepo,
	}
}

// Marketplace handles GET /marketplace - all LISTED records, newest first.
// The snapshot is cached for MarketplaceCacheTTL; a purchase may take up to
// that long to drop off the storefront.
func (h *MarketplaceHandlers) Marketplace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	if h.cache != nil {
		if cached, found := h.cache.Get(marketplaceCacheKey); found {
			if records, ok := cached.([]index.ListingRecord); ok {
				WriteJSON(w, r.Context(), http.StatusOK, AssetsResponse{Assets: records})
				return
			}
		}
	}

	records, err := h.index.ListAll(r.Context())
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNetworkFailure)
		WriteError(w, ctx, http.StatusBadGateway, ErrCodeNetworkFailure, "Failed to load marketplace listings")
		return
	}
	if records == nil {
		records = []index.ListingRecord{}
	}

	if h.cache != nil {
		h.cache.Set(marketplaceCacheKey, records, MarketplaceCacheTTL)
	}

	WriteJSON(w, r.Context(), http.StatusOK, AssetsResponse{Assets: records})
}

// Assets handles GET /assets - the authenticated identity's records, newest
// first, both LISTED and BOUGHT.
func (h *MarketplaceHandlers) Assets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	identity := middleware.GetIdentity(r.Context())
	if identity == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	records, err := h.index.QueryByOwner(r.Context(), identity)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNetworkFailure)
		WriteError(w, ctx, http.StatusBadGateway, ErrCodeNetworkFailure, "Failed to load assets")
		return
	}
	if records == nil {
		records = []index.ListingRecord{}
	}

	WriteJSON(w, r.Context(), http.StatusOK, AssetsResponse{Assets: records})
}

// Purchase handles POST /purchases - pays the listing price on the ledger
// and appends a BOUGHT row to the buyer's index. Send an Idempotency-Key
// header: a replayed request returns the original receipt without paying
// twice.
func (h *MarketplaceHandlers) Purchase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	identity := middleware.GetIdentity(r.Context())
	if identity == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if !contentHashPattern.MatchString(req.ContentHash) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "content_hash must be a 64-character hex fingerprint")
		return
	}

	listing, err := h.ledger.GetListing(r.Context(), req.ContentHash)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	if !listing.ForSale {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Asset is not for sale")
		return
	}

	txHash, err := h.ledger.Purchase(r.Context(), req.ContentHash, listing.PriceWei)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	price := ledger.FormatEther(listing.PriceWei)
	boughtRow := index.ListingRecord{
		Owner:         identity,
		AssetID:       req.ContentHash,
		WalletAddress: middleware.GetWallet(r.Context()),
		StorageKey:    listing.StorageKey,
		Price:         price,
		Action:        index.ActionBought,
		Timestamp:     time.Now().UTC(),
	}
	if err := h.index.Append(r.Context(), boughtRow); err != nil {
		// Paid on the ledger but missing from the buyer's index. Surface
		// the purchase anyway; the index row is recoverable from the tx.
		slog.ErrorContext(r.Context(), "purchase committed but index append failed",
			"error", err, "content_hash", req.ContentHash, "tx_hash", txHash)
	}

	if err := audit.LogAccessFromRequest(r, h.auditRepo, "asset", req.ContentHash, "buy_asset"); err != nil {
		slog.ErrorContext(r.Context(), "failed to audit purchase", "error", err, "content_hash", req.ContentHash)
	}

	WriteJSON(w, r.Context(), http.StatusOK, PurchaseResponse{
		TxHash:      txHash,
		ContentHash: req.ContentHash,
		Price:       price,
	})
}

// Listing handles GET /listings/{hash} - the on-ledger record for one asset.
func (h *MarketplaceHandlers) Listing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	hash := r.PathValue("hash")
	if !contentHashPattern.MatchString(hash) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "hash must be a 64-character hex fingerprint")
		return
	}

	listing, err := h.ledger.GetListing(r.Context(), hash)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, ListingResponse{
		ContentHash: hash,
		StorageKey:  listing.StorageKey,
		Owner:       listing.Owner,
		Timestamp:   listing.Timestamp,
		Price:       ledger.FormatEther(listing.PriceWei),
		ForSale:     listing.ForSale,
	})
}

// Access handles GET /access/{hash} - whether the authenticated identity may
// open the asset (it is the lister or has bought access).
func (h *MarketplaceHandlers) Access(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	identity := middleware.GetIdentity(r.Context())
	if identity == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	// Access lives on the contract under the buyer's address, not the email.
	wallet := middleware.GetWallet(r.Context())
	if wallet == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeWalletUnavailable)
		WriteError(w, ctx, StatusCodeMapping(ErrCodeWalletUnavailable), ErrCodeWalletUnavailable, "No wallet is linked to this identity")
		return
	}

	hash := r.PathValue("hash")
	if !contentHashPattern.MatchString(hash) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "hash must be a 64-character hex fingerprint")
		return
	}

	access, err := h.ledger.CheckAccess(r.Context(), hash, wallet)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, AccessResponse{
		ContentHash: hash,
		Access:      access,
	})
}

// writeLedgerError maps ledger sentinels onto the error envelope.
func (h *MarketplaceHandlers) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	code := ErrCodeNetworkFailure
	message := "Ledger is unreachable"
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		code = ErrCodeNotFound
		message = "Content hash not found on ledger"
	case errors.Is(err, ledger.ErrWalletUnavailable):
		code = ErrCodeWalletUnavailable
		message = "No signing wallet is configured"
	case errors.Is(err, ledger.ErrWrongNetwork):
		code = ErrCodeWrongNetwork
		message = "Ledger answered on an unexpected chain"
	case errors.Is(err, ledger.ErrTransactionRejected):
		code = ErrCodeTransactionRejected
		message = "Ledger transaction was rejected"
	}
	ctx := middleware.SetErrorCode(r.Context(), code)
	WriteError(w, ctx, StatusCodeMapping(code), code, message)
}
