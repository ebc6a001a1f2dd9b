package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/capitalize-ai/renovation-planner/internal/action"
	"github.com/capitalize-ai/renovation-planner/internal/email/emailtest"
	"github.com/capitalize-ai/renovation-planner/internal/handler"
	"github.com/capitalize-ai/renovation-planner/internal/llm/llmtest"
	"github.com/capitalize-ai/renovation-planner/internal/lock"
	"github.com/capitalize-ai/renovation-planner/internal/middleware"
	"github.com/capitalize-ai/renovation-planner/internal/model"
	"github.com/capitalize-ai/renovation-planner/internal/prompt"
	"github.com/capitalize-ai/renovation-planner/internal/service"
	"github.com/capitalize-ai/renovation-planner/internal/store"
	"github.com/capitalize-ai/renovation-planner/internal/store/storetest"
	"github.com/capitalize-ai/renovation-planner/pkg/logger"
)

const secret = "test-secret"

func token(scopes ...string) string {
	claims := &middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "homeowner-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name:   "Dana",
		Scopes: scopes,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	Expect(err).NotTo(HaveOccurred())
	return signed
}

var _ = Describe("Router", func() {
	var (
		ctx       context.Context
		s         *store.Memory
		f         *storetest.Fixture
		client    *llmtest.Client
		transport *emailtest.Transport
		ready     error
		router    http.Handler
	)

	do := func(method, path, bearer string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	errorOf := func(rec *httptest.ResponseRecorder) handler.ErrorResponse {
		var body handler.ErrorResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		return body
	}

	BeforeEach(func() {
		ctx = context.Background()
		s = store.NewMemory()
		f = storetest.Seed(ctx, s)
		client = llmtest.New()
		transport = emailtest.New()
		ready = nil

		log := logger.NewNop()
		builder := prompt.NewBuilder(s)
		exec := action.NewExecutor(s, transport, client, builder, action.ExecutorConfig{Timeout: time.Second}, log)
		convs := service.NewConversationService(s, nil, log)
		engine := service.NewEngine(s, convs, builder, client, exec, lock.NewLocal(), nil,
			service.EngineConfig{LLMTimeout: time.Second}, log)

		router = handler.NewRouter(handler.RouterConfig{
			JWTSecret:         secret,
			CORSOrigins:       []string{"http://localhost:3000"},
			RateLimitRequests: 1000,
			RateLimitWindow:   time.Minute,
			Logger:            log,
			Health: handler.NewHealthHandler(map[string]handler.Checker{
				"store": func(context.Context) error { return ready },
			}),
			Conversations: handler.NewConversationHandler(convs, engine, log),
			Actions:       handler.NewActionHandler(engine, log),
			Analyses:      handler.NewAnalysisHandler(service.NewAnalysisService(s), log),
			Events:        handler.NewEventHandler(convs, log),
		})
	})

	Describe("health", func() {
		It("reports healthy without auth", func() {
			Expect(do(http.MethodGet, "/health", "", nil).Code).To(Equal(http.StatusOK))
		})

		It("reports not ready when a check fails", func() {
			ready = errors.New("closed")
			rec := do(http.MethodGet, "/ready", "", nil)
			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(rec.Body.String()).To(ContainSubstring("store: closed"))
		})
	})

	Describe("auth", func() {
		It("rejects requests without a token", func() {
			rec := do(http.MethodGet, "/api/v1/conversations/"+f.Conversation.ID, "", nil)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("rejects a token signed with another secret", func() {
			forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "x"}).SignedString([]byte("other"))
			Expect(err).NotTo(HaveOccurred())
			rec := do(http.MethodGet, "/api/v1/conversations/"+f.Conversation.ID, forged, nil)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("conversations", func() {
		It("creates on first contact and returns the existing one afterwards", func() {
			req := model.EnsureConversationRequest{ProjectID: f.Project.ID, ContractorID: f.Other.ID}
			Expect(do(http.MethodPost, "/api/v1/conversations", token(), req).Code).To(Equal(http.StatusCreated))
			Expect(do(http.MethodPost, "/api/v1/conversations", token(), req).Code).To(Equal(http.StatusOK))
		})

		It("rejects unknown fields in the body", func() {
			rec := do(http.MethodPost, "/api/v1/conversations", token(), map[string]string{"title": "x"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("lists a project's conversations", func() {
			rec := do(http.MethodGet, "/api/v1/projects/"+f.Project.ID+"/conversations", token(), nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			var list model.ListConversationsResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &list)).To(Succeed())
			Expect(list.Total).To(Equal(1))
		})

		It("rejects a malformed conversation ID", func() {
			Expect(do(http.MethodGet, "/api/v1/conversations/not-a-uuid", token(), nil).Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 404 for an unknown conversation", func() {
			rec := do(http.MethodGet, "/api/v1/conversations/0190a6b2-0000-7000-8000-0000000000ff", token(), nil)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
			Expect(errorOf(rec).Code).To(Equal("not_found"))
		})
	})

	Describe("turns and decisions", func() {
		turnPath := func() string { return "/api/v1/conversations/" + f.Conversation.ID + "/turns" }

		It("records a turn and renders the conversation", func() {
			client.QueueReply("Happy to help.")

			rec := do(http.MethodPost, turnPath(), token(), model.SendTurnRequest{Text: "Hi"})
			Expect(rec.Code).To(Equal(http.StatusCreated))
			var resp model.TurnResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Messages).To(HaveLen(2))

			rec = do(http.MethodGet, "/api/v1/conversations/"+f.Conversation.ID, token(), nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			var view model.ConversationView
			Expect(json.Unmarshal(rec.Body.Bytes(), &view)).To(Succeed())
			Expect(view.Messages).To(HaveLen(2))
			Expect(view.Messages[1].Display).To(Equal("Happy to help."))
		})

		It("maps an empty turn to 422", func() {
			rec := do(http.MethodPost, turnPath(), token(), model.SendTurnRequest{Text: " "})
			Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
			Expect(errorOf(rec).Code).To(Equal("validation"))
		})

		It("approves once and reports a second approval as a conflict", func() {
			client.QueueToolCall("send_email", action.SendEmailArgs{
				Subject: "Warranty", Body: "<p>Which warranty applies?</p>",
				Reasoning: "asked", ActionSummary: "Ask about the warranty",
			})
			rec := do(http.MethodPost, turnPath(), token(), model.SendTurnRequest{Text: "Ask about warranty"})
			Expect(rec.Code).To(Equal(http.StatusCreated))
			var resp model.TurnResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			actionID := resp.Messages[1].Action.ID
			decision := model.Decision{Kind: model.DecisionApprove}
			path := "/api/v1/actions/" + actionID + "/decision"

			Expect(do(http.MethodPost, path, token(), decision).Code).To(Equal(http.StatusForbidden))

			rec = do(http.MethodPost, path, token(middleware.ScopeDecide), decision)
			Expect(rec.Code).To(Equal(http.StatusOK))
			var decided model.DecisionResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &decided)).To(Succeed())
			Expect(decided.Action.Status).To(Equal(model.ActionStatusExecuted))
			Expect(decided.Confirmation).NotTo(BeNil())

			rec = do(http.MethodPost, path, token(middleware.ScopeDecide), decision)
			Expect(rec.Code).To(Equal(http.StatusConflict))
			Expect(errorOf(rec).Code).To(Equal("invalid_state"))
			Expect(transport.SentCount()).To(Equal(1))
		})
	})

	Describe("analyses and events", func() {
		It("returns 404 for an unknown offer", func() {
			rec := do(http.MethodGet, "/api/v1/offers/0190a6b2-0000-7000-8000-0000000000ff/analyses", token(), nil)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("reports a disabled journal", func() {
			rec := do(http.MethodGet, "/api/v1/conversations/"+f.Conversation.ID+"/events", token(), nil)
			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(errorOf(rec).Code).To(Equal("journal_disabled"))
		})
	})
})
