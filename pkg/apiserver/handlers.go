package apiserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/acorn-io/acorn-names/pkg/backend"
	"github.com/acorn-io/acorn-names/pkg/db"
	"github.com/acorn-io/acorn-names/pkg/events"
	"github.com/acorn-io/acorn-names/pkg/model"
	"github.com/acorn-io/acorn-names/pkg/pricing"
	"github.com/acorn-io/acorn-names/pkg/version"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
)

type handler struct {
	backend backend.Backend
}

func newHandler(b backend.Backend) *handler {
	return &handler{
		backend: b,
	}
}

func (h *handler) root(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, version.Get())
}

func decode(r *http.Request, into interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

var errBadRequest = errors.New("bad request")

// withCaller decodes the body into req and runs fn as the authenticated
// caller.
func withCaller[T any](w http.ResponseWriter, r *http.Request, fn func(caller common.Address, req T) (interface{}, error)) {
	caller, err := callerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	var req T
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	resp, err := fn(caller, req)
	if err != nil {
		handleError(w, err)
		return
	}
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeSuccess(w, resp)
}

func (h *handler) getName(w http.ResponseWriter, r *http.Request) {
	name, err := h.backend.GetName(mux.Vars(r)["name"])
	if err != nil {
		handleError(w, err)
		return
	}
	writeSuccess(w, name)
}

func (h *handler) getPrice(w http.ResponseWriter, r *http.Request) {
	duration := pricing.OneYear
	if d := r.URL.Query().Get("duration"); d != "" {
		v, err := strconv.ParseUint(d, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: duration %q", model.ErrInvalidDuration, d))
			return
		}
		duration = v
	}
	price, err := h.backend.GetPrice(mux.Vars(r)["label"], duration)
	if err != nil {
		handleError(w, err)
		return
	}
	writeSuccess(w, price)
}

func (h *handler) buy(w http.ResponseWriter, r *http.Request) {
	withCaller(w, r, func(caller common.Address, req model.BuyRequest) (interface{}, error) {
		return h.backend.Buy(caller, req)
	})
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	withCaller(w, r, func(caller common.Address, req model.RegisterRequest) (interface{}, error) {
		return h.backend.Register(caller, req)
	})
}

func (h *handler) renew(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	withCaller(w, r, func(caller common.Address, req model.RenewRequest) (interface{}, error) {
		return h.backend.Renew(caller, name, req)
	})
}

func (h *handler) transfer(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	withCaller(w, r, func(caller common.Address, req model.TransferRequest) (interface{}, error) {
		return nil, h.backend.Transfer(caller, name, req)
	})
}

func (h *handler) transferWithPermit(w http.ResponseWriter, r *http.Request) {
	withCaller(w, r, func(caller common.Address, req model.PermitRequest) (interface{}, error) {
		return nil, h.backend.TransferWithPermit(caller, req)
	})
}

func (h *handler) setRecordStore(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	withCaller(w, r, func(caller common.Address, req model.RecordStoreRequest) (interface{}, error) {
		return nil, h.backend.SetRecordStore(caller, name, req)
	})
}

func (h *handler) approve(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	withCaller(w, r, func(caller common.Address, req model.ApproveRequest) (interface{}, error) {
		return nil, h.backend.Approve(caller, name, req)
	})
}

func (h *handler) setOperator(w http.ResponseWriter, r *http.Request) {
	withCaller(w, r, func(caller common.Address, req model.OperatorRequest) (interface{}, error) {
		return nil, h.backend.SetOperator(caller, req)
	})
}

func addressVar(r *http.Request, key string) (common.Address, error) {
	v := mux.Vars(r)[key]
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("%w: %s %q is not an address", errBadRequest, key, v)
	}
	return common.HexToAddress(v), nil
}

func (h *handler) getOperator(w http.ResponseWriter, r *http.Request) {
	owner, err := addressVar(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	operator, err := addressVar(r, "operator")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeSuccess(w, h.backend.GetOperator(owner, operator))
}

func (h *handler) listOwnerNames(w http.ResponseWriter, r *http.Request) {
	owner, err := addressVar(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := h.backend.ListNamesByOwner(owner)
	if err != nil {
		handleError(w, err)
		return
	}
	writeSuccess(w, resp)
}

func (h *handler) listExpiring(w http.ResponseWriter, r *http.Request) {
	before := r.URL.Query().Get("before")
	at, err := strconv.ParseUint(before, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: before %q", errBadRequest, before))
		return
	}
	resp, err := h.backend.ListNamesExpiringBefore(at)
	if err != nil {
		handleError(w, err)
		return
	}
	writeSuccess(w, resp)
}

func (h *handler) getToken(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: token id %q", errBadRequest, mux.Vars(r)["id"]))
		return
	}
	resp, err := h.backend.GetToken(id)
	if err != nil {
		handleError(w, err)
		return
	}
	writeSuccess(w, resp)
}

func (h *handler) getRegistry(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.backend.GetRegistry())
}

func (h *handler) startAuction(w http.ResponseWriter, r *http.Request) {
	withCaller(w, r, func(caller common.Address, req model.StartAuctionRequest) (interface{}, error) {
		return h.backend.StartAuction(caller, req)
	})
}

func (h *handler) getAuction(w http.ResponseWriter, r *http.Request) {
	a, err := h.backend.GetAuction(mux.Vars(r)["label"])
	if err != nil {
		handleError(w, err)
		return
	}
	writeSuccess(w, a)
}

func (h *handler) commit(w http.ResponseWriter, r *http.Request) {
	label := mux.Vars(r)["label"]
	withCaller(w, r, func(caller common.Address, req model.CommitRequest) (interface{}, error) {
		return nil, h.backend.CommitBid(caller, label, req)
	})
}

func (h *handler) reveal(w http.ResponseWriter, r *http.Request) {
	label := mux.Vars(r)["label"]
	withCaller(w, r, func(caller common.Address, req model.RevealRequest) (interface{}, error) {
		return h.backend.RevealBid(caller, label, req)
	})
}

func (h *handler) finalize(w http.ResponseWriter, r *http.Request) {
	label := mux.Vars(r)["label"]
	withCaller(w, r, func(caller common.Address, req model.FinalizeRequest) (interface{}, error) {
		return h.backend.FinalizeAuction(caller, label, req)
	})
}

func (h *handler) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := db.EventFilter{
		Kind: events.Kind(q.Get("kind")),
	}
	if node := q.Get("node"); node != "" {
		filter.Node = common.HexToHash(node).Hex()
	}
	if since := q.Get("since"); since != "" {
		v, err := strconv.ParseUint(since, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: since %q", errBadRequest, since))
			return
		}
		filter.Since = v
	}
	if limit := q.Get("limit"); limit != "" {
		v, err := strconv.Atoi(limit)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: limit %q", errBadRequest, limit))
			return
		}
		filter.Limit = v
	}

	evs, err := h.backend.ListEvents(filter)
	if err != nil {
		handleError(w, err)
		return
	}
	writeSuccess(w, evs)
}

type empty struct{}

func (h *handler) pause(w http.ResponseWriter, r *http.Request) {
	withCaller(w, r, func(caller common.Address, _ empty) (interface{}, error) {
		return nil, h.backend.Pause(caller)
	})
}

func (h *handler) unpause(w http.ResponseWriter, r *http.Request) {
	withCaller(w, r, func(caller common.Address, _ empty) (interface{}, error) {
		return nil, h.backend.Unpause(caller)
	})
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request) {
	withCaller(w, r, func(caller common.Address, _ empty) (interface{}, error) {
		return h.backend.Withdraw(caller)
	})
}

func (h *handler) setPricing(w http.ResponseWriter, r *http.Request) {
	withCaller(w, r, func(caller common.Address, req pricing.File) (interface{}, error) {
		return nil, h.backend.SetPricing(caller, req)
	})
}

func (h *handler) setCapability(w http.ResponseWriter, r *http.Request) {
	withCaller(w, r, func(caller common.Address, req model.CapabilityRequest) (interface{}, error) {
		return nil, h.backend.SetCapability(caller, req)
	})
}
