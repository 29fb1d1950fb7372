package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"druginfo-rag/internal/rag"
	"druginfo-rag/internal/rag/mocks"
	"druginfo-rag/internal/service"
)

func TestAskHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		mockSetup      func(*mocks.MockEngine)
		expectedStatus int
		check          func(*testing.T, AskResponse)
	}{
		{
			name: "answer with references",
			body: `{"question":"부작용은?","section":"side_effects","alias":"타이레놀","ingredient":"아세트아미노펜"}`,
			mockSetup: func(m *mocks.MockEngine) {
				m.EXPECT().Ask(gomock.Any(), rag.AskRequest{
					Question:    "부작용은?",
					Section:     "side_effects",
					Alias:       "타이레놀",
					Ingredients: []string{"아세트아미노펜"},
					K:           rag.DefaultK,
				}).Return(rag.AskResponse{
					Answer:     "발진이 나타날 수 있습니다.",
					References: []rag.Reference{{ItemSeq: "001", ItemName: "타이레놀정", Section: "side_effects", Score: 0.8}},
				}, nil)
			},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, resp AskResponse) {
				if resp.Answer != "발진이 나타날 수 있습니다." || len(resp.References) != 1 {
					t.Errorf("unexpected response: %+v", resp)
				}
			},
		},
		{
			name: "no matching products",
			body: `{"question":"효능?","alias":"없는약","k":3}`,
			mockSetup: func(m *mocks.MockEngine) {
				m.EXPECT().Ask(gomock.Any(), gomock.Any()).Return(rag.AskResponse{Answer: rag.NoInformationAnswer, NoMatchingProducts: true}, nil)
			},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, resp AskResponse) {
				if !resp.NoMatchingProducts || resp.References == nil {
					t.Errorf("unexpected response: %+v", resp)
				}
			},
		},
		{
			name:           "empty question",
			body:           `{"question":"  "}`,
			mockSetup:      func(m *mocks.MockEngine) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid body",
			body:           `{"question":`,
			mockSetup:      func(m *mocks.MockEngine) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "invalid filter",
			body: `{"question":"효능?","section":"dosage_form"}`,
			mockSetup: func(m *mocks.MockEngine) {
				m.EXPECT().Ask(gomock.Any(), gomock.Any()).Return(rag.AskResponse{}, service.InvalidFilter("section", "unknown section kind"))
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "llm failure",
			body: `{"question":"효능?"}`,
			mockSetup: func(m *mocks.MockEngine) {
				m.EXPECT().Ask(gomock.Any(), gomock.Any()).Return(rag.AskResponse{}, service.Kind(service.ErrExternalService, errors.New("boom")))
			},
			expectedStatus: http.StatusBadGateway,
		},
		{
			name: "store unavailable",
			body: `{"question":"효능?"}`,
			mockSetup: func(m *mocks.MockEngine) {
				m.EXPECT().Ask(gomock.Any(), gomock.Any()).Return(rag.AskResponse{}, service.Kind(service.ErrStoreUnavailable, errors.New("down")))
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name: "timeout",
			body: `{"question":"효능?"}`,
			mockSetup: func(m *mocks.MockEngine) {
				m.EXPECT().Ask(gomock.Any(), gomock.Any()).Return(rag.AskResponse{}, service.Kind(service.ErrTimeout, errors.New("slow")))
			},
			expectedStatus: http.StatusGatewayTimeout,
		},
		{
			name: "unclassified error",
			body: `{"question":"효능?"}`,
			mockSetup: func(m *mocks.MockEngine) {
				m.EXPECT().Ask(gomock.Any(), gomock.Any()).Return(rag.AskResponse{}, fmt.Errorf("unexpected"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			engine := mocks.NewMockEngine(ctrl)
			tt.mockSetup(engine)

			req := httptest.NewRequest(http.MethodPost, "/api/ask", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			NewAskHandler(engine).ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if !strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
				t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
			}
			if tt.check == nil {
				var errResp ErrorResponse
				if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil || errResp.Error == "" {
					t.Errorf("expected error body, got %q (%v)", w.Body.String(), err)
				}
				return
			}
			var resp AskResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			tt.check(t, resp)
		})
	}
}
