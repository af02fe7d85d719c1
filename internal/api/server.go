package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ZilDuck/zerosum-market-resolver/internal/dev"
	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
	"github.com/ZilDuck/zerosum-market-resolver/internal/marketplace"
	"github.com/ZilDuck/zerosum-market-resolver/pkg/tez"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

var errInvalidParameters = errors.New("invalid parameters")

type Server struct {
	aggregator marketplace.ListingAggregator
	discovery  marketplace.CollectionDiscovery
	calls      marketplace.CallBuilder
}

func NewServer(aggregator marketplace.ListingAggregator, discovery marketplace.CollectionDiscovery, calls marketplace.CallBuilder) Server {
	return Server{aggregator, discovery, calls}
}

func (s Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/collections", s.handleCollections).Methods("GET")
	r.HandleFunc("/collections/{contract}/listings", s.handleCollectionListings).Methods("GET")
	r.HandleFunc("/collections/{contract}/lowest", s.handleCollectionLowest).Methods("GET")
	r.HandleFunc("/collections/{contract}/offers", s.handleCollectionOffers).Methods("GET")
	r.HandleFunc("/collections/{contract}/count", s.handleCount).Methods("GET")
	r.HandleFunc("/collections/{contract}/tokens/{tokenId}/listings", s.handleTokenListings).Methods("GET")
	r.HandleFunc("/collections/{contract}/tokens/{tokenId}/listings/{nonce}", s.handleListingDetails).Methods("GET")
	r.HandleFunc("/collections/{contract}/tokens/{tokenId}/lowest", s.handleTokenLowest).Methods("GET")
	r.HandleFunc("/collections/{contract}/tokens/{tokenId}/offers", s.handleTokenOffers).Methods("GET")
	r.HandleFunc("/sellers/{address}/listings", s.handleSellerListings).Methods("GET")
	r.HandleFunc("/build/{operation}", s.handleBuild).Methods("POST")
	r.NotFoundHandler = notFoundHandler()

	return r
}

func (s Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, _ = fmt.Fprintf(w, "ok")
}

func (s Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	collections := s.discovery.Discover(r.Context())
	if queryBool(r, "classify") {
		collections = s.discovery.Classify(r.Context(), collections)
	}

	writeJson(w, http.StatusOK, collections)
}

func (s Server) handleCollectionListings(w http.ResponseWriter, r *http.Request) {
	contract, ok := getContract(w, r)
	if !ok {
		return
	}

	writeJson(w, http.StatusOK, s.aggregator.ListingsForCollection(r.Context(), contract))
}

func (s Server) handleCollectionLowest(w http.ResponseWriter, r *http.Request) {
	contract, ok := getContract(w, r)
	if !ok {
		return
	}

	listings := s.aggregator.ListingsForCollection(r.Context(), contract)
	writeJson(w, http.StatusOK, marketplace.LowestPerToken(listings))
}

func (s Server) handleCollectionOffers(w http.ResponseWriter, r *http.Request) {
	contract, ok := getContract(w, r)
	if !ok {
		return
	}

	offers := s.aggregator.OffersForCollection(r.Context(), contract)
	if queryBool(r, "actionable") {
		offers = marketplace.ActionableOffers(offers, s.aggregator.ListingsForCollection(r.Context(), contract))
	}

	writeJson(w, http.StatusOK, offers)
}

func (s Server) handleCount(w http.ResponseWriter, r *http.Request) {
	contract, ok := getContract(w, r)
	if !ok {
		return
	}

	writeJson(w, http.StatusOK, map[string]int{"activeTokens": s.aggregator.CountActiveTokens(r.Context(), contract)})
}

func (s Server) handleTokenListings(w http.ResponseWriter, r *http.Request) {
	contract, tokenId, ok := getToken(w, r)
	if !ok {
		return
	}

	writeJson(w, http.StatusOK, s.aggregator.ListingsForToken(r.Context(), contract, tokenId))
}

func (s Server) handleTokenLowest(w http.ResponseWriter, r *http.Request) {
	contract, tokenId, ok := getToken(w, r)
	if !ok {
		return
	}

	lowest := s.aggregator.LowestListing(r.Context(), contract, tokenId, queryBool(r, "stale"))
	if lowest == nil {
		writeError(w, r, http.StatusNotFound, "lowest", marketplace.ErrListingNotFound)
		return
	}

	writeJson(w, http.StatusOK, lowest)
}

func (s Server) handleTokenOffers(w http.ResponseWriter, r *http.Request) {
	contract, tokenId, ok := getToken(w, r)
	if !ok {
		return
	}

	offers := s.aggregator.OffersForToken(r.Context(), contract, tokenId)
	if queryBool(r, "actionable") {
		offers = marketplace.ActionableOffers(offers, s.aggregator.ListingsForToken(r.Context(), contract, tokenId))
	}

	writeJson(w, http.StatusOK, offers)
}

func (s Server) handleListingDetails(w http.ResponseWriter, r *http.Request) {
	contract, tokenId, ok := getToken(w, r)
	if !ok {
		return
	}

	nonce, err := getUint(r, "nonce")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "details", errInvalidParameters)
		return
	}

	listing, err := s.aggregator.ListingDetails(r.Context(), contract, tokenId, nonce)
	if err != nil {
		writeError(w, r, statusFor(err), "details", err)
		return
	}

	writeJson(w, http.StatusOK, listing)
}

func (s Server) handleSellerListings(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !tez.IsAccount(address) {
		writeError(w, r, http.StatusBadRequest, "seller", errInvalidParameters)
		return
	}

	writeJson(w, http.StatusOK, s.aggregator.ListingsForSeller(r.Context(), address))
}

func (s Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	operation := mux.Vars(r)["operation"]
	var params *entity.TransferParams
	var err error

	switch strings.ToLower(operation) {
	case "list":
		var req marketplace.ListRequest
		if err = decode(r, &req); err == nil {
			params, err = s.calls.List(r.Context(), req)
		}
	case "buy":
		var req marketplace.BuyRequest
		if err = decode(r, &req); err == nil {
			params, err = s.calls.Buy(r.Context(), req)
		}
	case "cancel":
		var req marketplace.CancelListingRequest
		if err = decode(r, &req); err == nil {
			params, err = s.calls.CancelListing(r.Context(), req)
		}
	case "offer":
		var req marketplace.MakeOfferRequest
		if err = decode(r, &req); err == nil {
			params, err = s.calls.MakeOffer(r.Context(), req)
		}
	case "accept":
		var req marketplace.AcceptOfferRequest
		if err = decode(r, &req); err == nil {
			params, err = s.calls.AcceptOffer(r.Context(), req)
		}
	case "withdraw":
		var req marketplace.WithdrawOfferRequest
		if err = decode(r, &req); err == nil {
			params, err = s.calls.WithdrawOffer(r.Context(), req)
		}
	default:
		writeError(w, r, http.StatusNotFound, "build", fmt.Errorf("unknown operation %q", operation))
		return
	}

	if err != nil {
		writeError(w, r, statusFor(err), "build", err)
		return
	}

	zap.L().With(zap.String("operation", operation), zap.String("entrypoint", params.Entrypoint)).Info("Built marketplace call")
	writeJson(w, http.StatusOK, params)
}

func decode(r *http.Request, req interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return fmt.Errorf("%w: %s", marketplace.ErrInvalidRequest, err.Error())
	}
	return nil
}

func statusFor(err error) int {
	var noEncoding *marketplace.NoViableEncodingError
	switch {
	case errors.Is(err, marketplace.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, marketplace.ErrListingNotFound):
		return http.StatusNotFound
	case errors.Is(err, marketplace.ErrStaleListing):
		return http.StatusConflict
	case errors.Is(err, marketplace.ErrUnknownMarketplace):
		return http.StatusServiceUnavailable
	case errors.As(err, &noEncoding):
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}

func getContract(w http.ResponseWriter, r *http.Request) (string, bool) {
	contract := mux.Vars(r)["contract"]
	if !tez.IsContract(contract) {
		writeError(w, r, http.StatusBadRequest, "contract", errInvalidParameters)
		return "", false
	}
	return contract, true
}

func getToken(w http.ResponseWriter, r *http.Request) (string, uint64, bool) {
	contract, ok := getContract(w, r)
	if !ok {
		return "", 0, false
	}

	tokenId, err := getUint(r, "tokenId")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "token", errInvalidParameters)
		return "", 0, false
	}
	return contract, tokenId, true
}

func getUint(r *http.Request, name string) (uint64, error) {
	value, ok := mux.Vars(r)[name]
	if !ok {
		return 0, errInvalidParameters
	}

	return strconv.ParseUint(value, 10, 64)
}

func queryBool(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}

func writeJson(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().With(zap.Error(err)).Warn("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, name string, err error) {
	e := dev.NewError("api", name, err, map[string]interface{}{"path": r.URL.Path})
	e.RequestId = dev.NewRequestId()

	zap.L().With(zap.String("requestId", e.RequestId), zap.Int("status", status), zap.Error(err)).Warn("Request failed")
	writeJson(w, status, e)
}

func notFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
		_, _ = fmt.Fprintf(w, "Page not found")
	})
}
