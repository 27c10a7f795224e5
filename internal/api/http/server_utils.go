package apihttp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorPayload{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// badRequestError marks an RPC failure caused by the caller's input.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

// rpcIDs is the decoded "ids" argument. Transmission clients send a single
// number, a single hash string, or an array mixing both.
type rpcIDs struct {
	numbers []int64
	hashes  []string
}

func (ids rpcIDs) empty() bool {
	return len(ids.numbers) == 0 && len(ids.hashes) == 0
}

func (ids rpcIDs) matches(id int64, hash string) bool {
	for _, n := range ids.numbers {
		if n == id {
			return true
		}
	}
	for _, h := range ids.hashes {
		if hash != "" && strings.EqualFold(h, hash) {
			return true
		}
	}
	return false
}

func (ids *rpcIDs) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	values, ok := raw.([]any)
	if !ok {
		values = []any{raw}
	}
	for _, v := range values {
		switch val := v.(type) {
		case nil:
		case float64:
			ids.numbers = append(ids.numbers, int64(val))
		case string:
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				ids.numbers = append(ids.numbers, n)
				continue
			}
			if val != "" && val != "recently-active" {
				ids.hashes = append(ids.hashes, val)
			}
		default:
			return fmt.Errorf("unsupported id %v", v)
		}
	}
	return nil
}
