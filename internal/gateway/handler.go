// Package gateway exposes the escrow engine and query service over HTTP.
// Callers authenticate as an account address; mutating routes forward that
// principal to the engine, read routes go straight to the query service.
package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DeBounty-Network/escrow_layer/internal/domain/ledger"
	"github.com/DeBounty-Network/escrow_layer/internal/engine"
	"github.com/DeBounty-Network/escrow_layer/internal/errors"
	"github.com/DeBounty-Network/escrow_layer/internal/metrics"
	"github.com/DeBounty-Network/escrow_layer/internal/query"
	"github.com/DeBounty-Network/escrow_layer/pkg/logger"
)

// Config collects the handler's collaborators.
type Config struct {
	Engine *engine.Engine
	Query  *query.Service
	Log    *logger.Logger

	// AuditMax bounds the in-memory audit ring; AuditPath, when set,
	// additionally appends entries to a JSONL file.
	AuditMax  int
	AuditPath string
}

type handler struct {
	engine *engine.Engine
	query  *query.Service
	log    *logger.Logger
	audit  *auditLog
}

// NewHandler returns a mux exposing the REST API.
func NewHandler(cfg Config) (http.Handler, error) {
	sink, err := newFileAuditSink(cfg.AuditPath)
	if err != nil {
		return nil, err
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("gateway")
	}

	h := &handler{
		engine: cfg.Engine,
		query:  cfg.Query,
		log:    log.WithComponent("gateway"),
		audit:  newAuditLog(cfg.AuditMax, sink),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthz)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/ledger/", h.ledgerResources)
	mux.HandleFunc("/tasks", h.tasks)
	mux.HandleFunc("/tasks/", h.taskResources)
	mux.HandleFunc("/audit", h.auditEntries)

	return h.recordAudit(mux), nil
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) ledgerResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ledger"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch parts[0] {
	case "deposit":
		h.deposit(w, r)
	case "withdraw":
		h.withdraw(w, r)
	case "balances":
		h.balances(w, r, parts[1:])
	case "pool":
		h.pool(w, r)
	case "entries":
		h.entries(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) deposit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.InvalidArgument("invalid request body").WithCause(err))
		return
	}

	entry, err := h.engine.Deposit(r.Context(), Principal(r.Context()), payload.Amount)
	metrics.RecordOperation("deposit", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.InvalidArgument("invalid request body").WithCause(err))
		return
	}

	entry, err := h.engine.Withdraw(r.Context(), Principal(r.Context()), payload.Amount)
	metrics.RecordOperation("withdraw", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *handler) balances(w http.ResponseWriter, r *http.Request, rest []string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if len(rest) == 0 || rest[0] == "" {
		balances, err := h.query.Balances(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, balances)
		return
	}

	account := rest[0]
	balance, err := h.query.Balance(r.Context(), account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": account,
		"balance": balance,
	})
}

func (h *handler) pool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	report, err := h.query.Pool(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) entries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, err)
		return
	}

	entries, err := h.query.Entries(r.Context(), r.URL.Query().Get("account"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handler) tasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Description string `json:"description"`
			Bounty      int64  `json:"bounty"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, errors.InvalidArgument("invalid request body").WithCause(err))
			return
		}

		task, err := h.engine.CreateTask(r.Context(), Principal(r.Context()), payload.Description, payload.Bounty)
		metrics.RecordOperation("create_task", err)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, task)

	case http.MethodGet:
		status := ledger.TaskStatus(strings.TrimSpace(r.URL.Query().Get("status")))
		tasks, err := h.query.Tasks(r.Context(), status)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tasks)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) taskResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/tasks"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if parts[0] == "count" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		count, err := h.query.TaskCount(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]uint64{"count": count})
		return
	}

	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		writeError(w, errors.InvalidArgument("invalid task id %q", parts[0]))
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		task, err := h.query.Task(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
		return
	}

	switch parts[1] {
	case "assign":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload struct {
			Assignee string `json:"assignee"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil && err != io.EOF {
			writeError(w, errors.InvalidArgument("invalid request body").WithCause(err))
			return
		}
		task, err := h.engine.AssignTask(r.Context(), Principal(r.Context()), id, payload.Assignee)
		metrics.RecordOperation("assign_task", err)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, task)

	case "complete":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		task, err := h.engine.CompleteTask(r.Context(), Principal(r.Context()), id)
		metrics.RecordOperation("complete_task", err)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, task)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) auditEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

// recordAudit appends an audit entry for every request except health and
// metrics probes.
func (h *handler) recordAudit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		op, taskID := operationFor(r.Method, r.URL.Path)
		h.audit.add(auditEntry{
			Time:       time.Now().UTC(),
			Caller:     Principal(r.Context()),
			Op:         op,
			TaskID:     taskID,
			Path:       r.URL.Path,
			Method:     r.Method,
			Status:     rec.status,
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func parseLimit(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.InvalidArgument("invalid limit %q", raw)
	}
	return limit, nil
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errors.HTTPStatusOf(err))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":  string(errors.CodeOf(err)),
		"error": err.Error(),
	})
}
