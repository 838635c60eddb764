package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/fintrack/apiserver/internal/services"
	"github.com/fintrack/apiserver/internal/store"
	"github.com/fintrack/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	maxMultipartMemory = 32 << 20
	maxReceiptBytes    = 10 << 20
	formFieldReceipt   = "receipt"
)

// TransactionHandler provides HTTP handlers for transactions. Every route
// requires an authenticated account; the resolved identity scopes all
// reads and writes.
type TransactionHandler struct {
	txService   *services.TransactionService
	userService *services.UserService
}

// NewTransactionHandler constructs a handler with the provided services.
func NewTransactionHandler(txService *services.TransactionService, userService *services.UserService) *TransactionHandler {
	return &TransactionHandler{
		txService:   txService,
		userService: userService,
	}
}

// TransactionRouter registers transaction routes on the given router.
func TransactionRouter(
	r chi.Router,
	txService *services.TransactionService,
	userService *services.UserService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewTransactionHandler(txService, userService)

	if authMiddleware != nil {
		r.Use(authMiddleware)
	}
	r.Get("/", handler.ListTransactions)
	r.Post("/", handler.CreateTransaction)
	r.Get("/summary", handler.Summary)
	r.Route("/{transactionID}", func(r chi.Router) {
		r.Put("/", handler.UpdateTransaction)
		r.Delete("/", handler.DeleteTransaction)
		r.Post("/receipt", handler.UploadReceipt)
		r.Get("/receipt", handler.DownloadReceipt)
	})
}

func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ownerID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	transactions, err := h.txService.List(r.Context(), ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	writeJSON(w, http.StatusOK, transactions)
}

func (h *TransactionHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	ownerID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	created, err := h.txService.Create(r.Context(), ownerID, types.Transaction{
		Title:    req.Title,
		Amount:   req.Amount,
		Type:     req.Type,
		Category: req.Category,
	})
	if err != nil {
		writeServiceError(w, err, "failed to create transaction")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *TransactionHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	ownerID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseTransactionID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}

	var patch types.TransactionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.txService.Update(r.Context(), ownerID, id, patch)
	if err != nil {
		writeServiceError(w, err, "failed to update transaction")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *TransactionHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	ownerID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseTransactionID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}

	if err := h.txService.Delete(r.Context(), ownerID, id); err != nil {
		writeServiceError(w, err, "failed to delete transaction")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "transaction deleted"})
}

// Summary returns the derived aggregates over the caller's transactions,
// including the budget condition when a monthly budget is set.
func (h *TransactionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ownerID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.userService.GetByID(r.Context(), ownerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load account")
		return
	}

	transactions, err := h.txService.List(r.Context(), ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	writeJSON(w, http.StatusOK, services.Summarize(transactions, user.MonthlyBudget, time.Now()))
}

// UploadReceipt stores a receipt file for an owned transaction.
func (h *TransactionHandler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	if !h.txService.ReceiptsEnabled() {
		writeError(w, http.StatusServiceUnavailable, "receipt storage not configured")
		return
	}

	ownerID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseTransactionID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, err := parseReceiptFile(r.MultipartForm)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.txService.AttachReceipt(r.Context(), ownerID, id, file.Filename, file.ContentType, file.Data)
	if err != nil {
		writeServiceError(w, err, "failed to store receipt")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// DownloadReceipt streams a previously uploaded receipt.
func (h *TransactionHandler) DownloadReceipt(w http.ResponseWriter, r *http.Request) {
	if !h.txService.ReceiptsEnabled() {
		writeError(w, http.StatusServiceUnavailable, "receipt storage not configured")
		return
	}

	ownerID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseTransactionID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}

	reader, err := h.txService.OpenReceipt(r.Context(), ownerID, id)
	if err != nil {
		writeServiceError(w, err, "failed to read receipt")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

// TransactionRequest is the create payload. Amount accepts a JSON number
// or numeric string.
type TransactionRequest struct {
	Title    string          `json:"title"`
	Amount   decimal.Decimal `json:"amount"`
	Type     string          `json:"type"`
	Category string          `json:"category"`
}

// ReceiptFile represents an uploaded receipt.
type ReceiptFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// parseTransactionID treats a syntactically invalid id the same as an
// absent record, so malformed ids do not leak a distinct response.
func parseTransactionID(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "transactionID")
	if err := uuid.Validate(raw); err != nil {
		return "", errors.New("invalid transaction id")
	}
	return raw, nil
}

func parseReceiptFile(form *multipart.Form) (ReceiptFile, error) {
	if form == nil {
		return ReceiptFile{}, errors.New("missing form data")
	}

	files := form.File[formFieldReceipt]
	if len(files) == 0 {
		return ReceiptFile{}, errors.New("receipt file is required")
	}
	if len(files) > 1 {
		return ReceiptFile{}, errors.New("only one receipt file is allowed")
	}

	fileHeader := files[0]
	file, err := fileHeader.Open()
	if err != nil {
		return ReceiptFile{}, errors.New("failed to read receipt file")
	}

	data, err := readFileLimited(file, maxReceiptBytes)
	_ = file.Close()
	if err != nil {
		return ReceiptFile{}, err
	}

	return ReceiptFile{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}
