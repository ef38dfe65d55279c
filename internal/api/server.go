package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	xerrors "OpenPaint-Agent/internal/errors"
	"OpenPaint-Agent/internal/observability/metrics"
	"OpenPaint-Agent/internal/run"
)

// Server 负责暴露 REST 接口，供外部提交和查询运行。
type Server struct {
	addr    string
	service *run.Service
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, service *run.Service) *Server {
	return &Server{addr: addr, service: service}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/api/v1/runs", metrics.Middleware("runs", http.HandlerFunc(s.handleRuns)))
	mux.Handle("/api/v1/runs/", metrics.Middleware("run_detail", http.HandlerFunc(s.handleRunDetail)))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)

	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitRun(w, r)
	case http.MethodGet:
		s.handleListRuns(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

// handleSubmitRun 接收一次运行请求并异步排队执行。
func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		http.Error(w, "运行服务未初始化", http.StatusServiceUnavailable)
		return
	}

	var req run.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	created, err := s.service.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(created)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		http.Error(w, "运行服务未初始化", http.StatusServiceUnavailable)
		return
	}

	opts := run.ListOptions{}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts.Limit = parsed
		}
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := run.Status(strings.TrimSpace(part))
			if !run.IsValidStatus(status) {
				http.Error(w, "无效的状态过滤: "+string(status), http.StatusBadRequest)
				return
			}
			opts.Statuses = append(opts.Statuses, status)
		}
	}

	runs, err := s.service.List(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(runs)
}

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.service == nil {
		http.Error(w, "运行服务未初始化", http.StatusServiceUnavailable)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "无效的运行 ID", http.StatusBadRequest)
		return
	}

	result, err := s.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// writeError 把统一错误码映射到 HTTP 状态码。
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch xerrors.CodeOf(err) {
	case run.CodeRunNotFound, xerrors.CodeNotFound:
		status = http.StatusNotFound
	case run.CodeRunValidation, xerrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case run.CodeRunConflict, xerrors.CodeConflict:
		status = http.StatusConflict
	case xerrors.CodeInitializationFailure:
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	payload := map[string]string{"error": err.Error()}
	if e, ok := xerrors.From(err); ok {
		payload["code"] = string(e.Code())
		payload["message"] = e.Message()
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
