package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/newthinker/cta/internal/core"
)

func TestJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, http.StatusCreated, map[string]string{"hello": "world"})

	if w.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", w.Code)
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected application/json content type")
	}

	var resp SuccessResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.(map[string]any)["hello"] != "world" {
		t.Errorf("unexpected data: %v", resp.Data)
	}
	if resp.Meta.Count != nil {
		t.Error("single object should not carry a count")
	}
}

func TestList_NilBecomesEmpty(t *testing.T) {
	w := httptest.NewRecorder()

	List[string](w, nil)

	var resp struct {
		Data []string `json:"data"`
		Meta Meta     `json:"meta"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data == nil || len(resp.Data) != 0 {
		t.Errorf("expected empty array, got %v", resp.Data)
	}
	if resp.Meta.Count == nil || *resp.Meta.Count != 0 {
		t.Errorf("expected count 0, got %v", resp.Meta.Count)
	}
}

func TestError_CoreError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusBadRequest, core.WrapError(core.ErrConfigInvalid, errors.New("bad date")))

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error.Code != "CONFIG_INVALID" {
		t.Errorf("expected CONFIG_INVALID, got %s", resp.Error.Code)
	}
	if resp.Error.Cause != "bad date" {
		t.Errorf("expected cause, got %q", resp.Error.Cause)
	}
}

func TestError_HidesUnknownErrors(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusInternalServerError, errors.New("db password wrong"))

	var resp ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != "INTERNAL_ERROR" || resp.Error.Cause != "" {
		t.Errorf("unexpected detail: %+v", resp.Error)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.WrapError(core.ErrNotFound, errors.New("job x")), http.StatusNotFound},
		{fmt.Errorf("lookup: %w", core.ErrStrategyNotFound), http.StatusNotFound},
		{core.ErrConfigMissing, http.StatusBadRequest},
		{core.ErrUnauthorized, http.StatusUnauthorized},
		{core.WrapError(core.ErrTooManyJobs, errors.New("2 jobs unfinished")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
