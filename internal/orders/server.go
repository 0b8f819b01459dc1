package orders

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ZilDuck/solana-card-market/internal/entity"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Server struct {
	store    Store
	validate *validator.Validate
}

func NewServer(store Store) Server {
	return Server{store, validator.New()}
}

type createRequest struct {
	ListingAddress string          `json:"listingAddress" validate:"required"`
	BuyerWallet    string          `json:"buyerWallet" validate:"required"`
	SellerWallet   string          `json:"sellerWallet" validate:"required,nefield=BuyerWallet"`
	Price          uint64          `json:"price" validate:"gt=0"`
	BuyerContact   *entity.Contact `json:"buyerContact" validate:"required"`
	SellerContact  *entity.Contact `json:"sellerContact"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (s Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/orders", s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/orders", s.handleList).Methods(http.MethodGet).Queries("wallet", "{wallet}")
	r.HandleFunc("/orders/{listing}/status", s.handleStatus).Methods(http.MethodPatch)
	r.NotFoundHandler = notFoundHandler()

	return r
}

func (s Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid order", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid order: %s", err), http.StatusBadRequest)
		return
	}
	if req.BuyerContact.Empty() {
		http.Error(w, "Invalid order: buyer contact is empty", http.StatusBadRequest)
		return
	}

	order, err := s.store.Create(r.Context(), entity.Order{
		ListingAddress: req.ListingAddress,
		BuyerWallet:    req.BuyerWallet,
		SellerWallet:   req.SellerWallet,
		Price:          req.Price,
		BuyerContact:   req.BuyerContact,
		SellerContact:  req.SellerContact,
		Status:         entity.OrderPendingShipment,
	})
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("listing", req.ListingAddress)).Error("OrderApi: Failed to create order")
		http.Error(w, "Failed to create order", http.StatusInternalServerError)
		return
	}

	zap.L().With(zap.String("id", order.Id), zap.String("listing", order.ListingAddress)).Info("OrderApi: Order created")
	writeJSON(w, http.StatusCreated, order)
}

func (s Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	listing := mux.Vars(r)["listing"]

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || s.validate.Struct(req) != nil {
		http.Error(w, "Invalid status", http.StatusBadRequest)
		return
	}
	status, err := entity.ParseOrderStatus(req.Status)
	if err != nil {
		http.Error(w, "Invalid status", http.StatusBadRequest)
		return
	}

	order, err := s.store.UpdateStatus(r.Context(), listing, status)
	switch {
	case errors.Is(err, ErrOrderNotFound):
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		zap.L().With(zap.Error(err), zap.String("listing", listing)).Error("OrderApi: Failed to update order")
		http.Error(w, "Failed to update order", http.StatusInternalServerError)
		return
	}

	zap.L().With(zap.String("listing", listing), zap.String("status", string(status))).Info("OrderApi: Order updated")
	writeJSON(w, http.StatusOK, order)
}

func (s Server) handleList(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	role := entity.OrderRole(r.URL.Query().Get("role"))
	if role != entity.RoleBuyer && role != entity.RoleSeller && role != entity.RoleAny {
		http.Error(w, "Invalid role", http.StatusBadRequest)
		return
	}

	orders, err := s.store.ListByWallet(r.Context(), wallet, role)
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("wallet", wallet)).Error("OrderApi: Failed to list orders")
		http.Error(w, "Failed to list orders", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, orders)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func notFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Page not found", http.StatusNotFound)
	})
}
