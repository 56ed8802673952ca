package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"usenet-sync/go-core/internal/identity"
	"usenet-sync/go-core/internal/license"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

const maxRPCBodyBytes int64 = 1 << 20 // 1 MiB

// Application error codes. -32001..-32005 are policy refusals the shell
// renders to the user; -32010 is infrastructure trouble (secret store,
// damaged records) where retrying or reinstalling is the only remedy.
const (
	codeTrialAlreadyUsed   = -32001
	codeDeviceVerification = -32002
	codeInvalidLicenseKey  = -32003
	codeActivationLimit    = -32004
	codeNoLicense          = -32005
	codeInternal           = -32010
)

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !s.limiter.Allow(callerKey(r, s.token), time.Now()) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	if s.service == nil {
		writeRPC(w, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: -32099, Message: "service is not initialized"},
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRPCBodyBytes)
	var req rpcRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeRPC(w, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: -32700, Message: "parse error"},
		})
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeRPCInvalidRequest(w, req.ID)
		return
	}

	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPCInvalidRequest(w, req.ID)
		return
	}
	reqID := fmt.Sprintf("rpc_%d", time.Now().UnixNano())
	started := time.Now()
	slog.Default().Info("rpc request", "request_id", reqID, "method", req.Method, "rpc_id", string(req.ID))

	result, rpcErr := s.dispatchRPC(req.Method, req.Params)
	if rpcErr != nil {
		slog.Default().Error("rpc failed", "request_id", reqID, "method", req.Method, "rpc_code", rpcErr.Code, "latency_ms", time.Since(started).Milliseconds())
	} else {
		slog.Default().Info("rpc response", "request_id", reqID, "method", req.Method, "latency_ms", time.Since(started).Milliseconds())
	}
	if s.stats != nil {
		s.stats.RPCRequests.WithLabelValues(req.Method, rpcOutcome(rpcErr)).Inc()
	}
	writeRPC(w, rpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
		Error:   rpcErr,
	})
}

func (s *Server) dispatchRPC(method string, rawParams json.RawMessage) (any, *rpcError) {
	switch method {
	case "health_check":
		return map[string]string{"status": "ok"}, nil
	case "identity_initialize":
		id, created, err := s.service.InitializeIdentity()
		if err != nil {
			return nil, mapServiceError(err)
		}
		return map[string]any{"identity": id, "created": created}, nil
	case "identity_get":
		id, err := s.service.CurrentIdentity()
		if err != nil {
			return nil, mapServiceError(err)
		}
		return map[string]any{"identity": id}, nil
	case "identity_export":
		blob, err := s.service.ExportPublicIdentity()
		if err != nil {
			return nil, mapServiceError(err)
		}
		return map[string]string{"export": blob}, nil
	case "identity_proof":
		proof, err := s.service.CreateProof()
		if err != nil {
			return nil, mapServiceError(err)
		}
		return map[string]any{"proof": proof}, nil
	case "identity_destroy":
		var params struct {
			Confirm bool `json:"confirm"`
		}
		if err := decodeParams(rawParams, &params); err != nil || !params.Confirm {
			return nil, rpcInvalidParams()
		}
		if err := s.service.DestroyIdentity(); err != nil {
			return nil, mapServiceError(err)
		}
		return map[string]bool{"destroyed": true}, nil
	case "license_activate_trial":
		lic, err := s.service.ActivateTrial()
		if err != nil {
			return nil, mapServiceError(err)
		}
		return licenseResult(lic, s.service), nil
	case "license_activate_full":
		var params struct {
			LicenseKey string `json:"license_key"`
		}
		if err := decodeParams(rawParams, &params); err != nil || params.LicenseKey == "" {
			return nil, rpcInvalidParams()
		}
		lic, err := s.service.ActivateFull(params.LicenseKey)
		if err != nil {
			return nil, mapServiceError(err)
		}
		return licenseResult(lic, s.service), nil
	case "license_check":
		valid, lic := s.service.CheckLicense()
		result := map[string]any{"is_valid": valid}
		if lic != nil {
			result["license"] = lic
			if days, ok := s.service.RemainingDays(*lic); ok {
				result["remaining_days"] = days
			}
		}
		return result, nil
	case "license_deactivate":
		if err := s.service.DeactivateLicense(); err != nil {
			return nil, mapServiceError(err)
		}
		return map[string]bool{"deactivated": true}, nil
	case "license_generate_key":
		var params struct {
			LicenseType    string  `json:"license_type"`
			DurationDays   *int64  `json:"duration_days"`
			MaxActivations *uint32 `json:"max_activations"`
		}
		if err := decodeParams(rawParams, &params); err != nil || params.LicenseType == "" {
			return nil, rpcInvalidParams()
		}
		maxActivations := uint32(1)
		if params.MaxActivations != nil {
			maxActivations = *params.MaxActivations
		}
		token, err := s.service.GenerateLicenseKey(license.Type(params.LicenseType), params.DurationDays, maxActivations)
		if err != nil {
			return nil, mapServiceError(err)
		}
		return map[string]string{"license_key": token}, nil
	}
	return nil, &rpcError{Code: -32601, Message: "method not found"}
}

func licenseResult(lic license.License, svc Service) map[string]any {
	result := map[string]any{"license": lic}
	if days, ok := svc.RemainingDays(lic); ok {
		result["remaining_days"] = days
	}
	return result
}

func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return errors.New("missing params")
	}
	return json.Unmarshal(raw, dst)
}

func rpcInvalidParams() *rpcError {
	return &rpcError{Code: -32602, Message: "invalid params"}
}

func mapServiceError(err error) *rpcError {
	switch {
	case errors.Is(err, license.ErrTrialAlreadyUsed):
		return &rpcError{Code: codeTrialAlreadyUsed, Message: "trial already used on this device; purchase a license to continue"}
	case errors.Is(err, license.ErrDeviceVerification):
		return &rpcError{Code: codeDeviceVerification, Message: "device verification failed"}
	case errors.Is(err, license.ErrInvalidKey):
		return &rpcError{Code: codeInvalidLicenseKey, Message: "invalid license key"}
	case errors.Is(err, license.ErrActivationLimit):
		return &rpcError{Code: codeActivationLimit, Message: "activation limit reached"}
	case errors.Is(err, license.ErrNoLicense):
		return &rpcError{Code: codeNoLicense, Message: "no license on this device"}
	case errors.Is(err, identity.ErrCorruptRecord):
		return &rpcError{Code: codeInternal, Message: "identity record is damaged"}
	case errors.Is(err, identity.ErrKeyNotFound):
		return &rpcError{Code: codeInternal, Message: "signing key is missing"}
	default:
		return &rpcError{Code: codeInternal, Message: "internal error"}
	}
}

func rpcOutcome(rpcErr *rpcError) string {
	if rpcErr == nil {
		return "ok"
	}
	return "error"
}

func writeRPC(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeRPCInvalidRequest(w http.ResponseWriter, id json.RawMessage) {
	writeRPC(w, rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: -32600, Message: "invalid request"},
	})
}
