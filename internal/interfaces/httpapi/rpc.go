package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"txstatus/internal/domain"

	"golang.org/x/sync/errgroup"
)

const (
	MethodGetTransactionStatus = "txstatus_getTransactionStatus"

	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603

	maxRequestBytes = 1 << 20
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

var nullID = json.RawMessage("null")

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		respondJSON(w, http.StatusRequestEntityTooLarge, errorResponse(nullID, codeInvalidRequest, "Invalid Request", "request body too large"))
		return
	}
	body = bytes.TrimSpace(body)

	if len(body) > 0 && body[0] == '[' {
		var calls []json.RawMessage
		if err := json.Unmarshal(body, &calls); err != nil {
			respondJSON(w, http.StatusOK, errorResponse(nullID, codeParseError, "Parse error", ""))
			return
		}
		s.handleBatch(r.Context(), w, calls)
		return
	}
	if !json.Valid(body) {
		respondJSON(w, http.StatusOK, errorResponse(nullID, codeParseError, "Parse error", ""))
		return
	}
	resp, ok := s.call(r.Context(), body)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBatch(ctx context.Context, w http.ResponseWriter, calls []json.RawMessage) {
	if len(calls) == 0 {
		respondJSON(w, http.StatusOK, errorResponse(nullID, codeInvalidRequest, "Invalid Request", "empty batch"))
		return
	}
	if len(calls) > s.cfg.BatchLimit {
		respondJSON(w, http.StatusOK, errorResponse(nullID, codeInvalidRequest, "Invalid Request",
			"batch exceeds "+strconv.Itoa(s.cfg.BatchLimit)+" calls"))
		return
	}

	responses := make([]rpcResponse, len(calls))
	answered := make([]bool, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchConcurrency)
	for i, call := range calls {
		g.Go(func() error {
			responses[i], answered[i] = s.call(gctx, call)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]rpcResponse, 0, len(calls))
	for i := range responses {
		if answered[i] {
			out = append(out, responses[i])
		}
	}
	if len(out) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// call executes one JSON-RPC request. It reports false for notifications,
// which get no response.
func (s *Server) call(ctx context.Context, raw json.RawMessage) (rpcResponse, bool) {
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nullID, codeInvalidRequest, "Invalid Request", ""), true
	}
	id := req.ID
	notification := len(id) == 0
	if notification {
		id = nullID
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		s.metrics.observeRPC("invalid", codeInvalidRequest)
		return errorResponse(id, codeInvalidRequest, "Invalid Request", ""), true
	}

	resp := s.dispatch(ctx, id, req)
	if resp.Error != nil {
		s.metrics.observeRPC(methodLabel(req.Method), resp.Error.Code)
	} else {
		s.metrics.observeRPC(methodLabel(req.Method), 0)
	}
	return resp, !notification
}

func (s *Server) dispatch(ctx context.Context, id json.RawMessage, req rpcRequest) rpcResponse {
	if req.Method != MethodGetTransactionStatus {
		return errorResponse(id, codeMethodNotFound, "Method not found", "")
	}
	hash, err := decodeTransactionHashParams(req.Params)
	if err != nil {
		return errorResponse(id, codeInvalidParams, "Invalid params", err.Error())
	}
	status, err := s.resolver.Resolve(ctx, hash)
	if err != nil {
		return errorResponse(id, codeInternalError, "Internal error", "")
	}
	return rpcResponse{JSONRPC: "2.0", Result: status, ID: id}
}

// decodeTransactionHashParams accepts {"transaction_hash": "0x.."} or
// ["0x.."].
func decodeTransactionHashParams(params json.RawMessage) (domain.TransactionHash, error) {
	params = bytes.TrimSpace(params)
	if len(params) == 0 || bytes.Equal(params, []byte("null")) {
		return domain.TransactionHash{}, errors.New("missing field transaction_hash")
	}

	var raw *string
	switch params[0] {
	case '[':
		var positional []*string
		if err := json.Unmarshal(params, &positional); err != nil {
			return domain.TransactionHash{}, err
		}
		if len(positional) != 1 {
			return domain.TransactionHash{}, errors.New("expected exactly one parameter")
		}
		raw = positional[0]
	case '{':
		var named struct {
			TransactionHash *string `json:"transaction_hash"`
		}
		if err := json.Unmarshal(params, &named); err != nil {
			return domain.TransactionHash{}, err
		}
		raw = named.TransactionHash
	default:
		return domain.TransactionHash{}, errors.New("params must be an object or an array")
	}
	if raw == nil {
		return domain.TransactionHash{}, errors.New("missing field transaction_hash")
	}
	return domain.ParseTransactionHash(*raw)
}

func errorResponse(id json.RawMessage, code int, message, data string) rpcResponse {
	return rpcResponse{
		JSONRPC: "2.0",
		Error:   &rpcError{Code: code, Message: message, Data: data},
		ID:      id,
	}
}

func methodLabel(method string) string {
	if method == MethodGetTransactionStatus {
		return method
	}
	return "unknown"
}

func rpcCodeLabel(code int) string {
	if code == 0 {
		return "ok"
	}
	return strconv.Itoa(code)
}
