package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authhandler "eseva/internal/auth/handler"
	authmodels "eseva/internal/auth/models"
	authservice "eseva/internal/auth/service"
	"eseva/internal/auth/store/loginsession"
	"eseva/internal/auth/store/revocation"
	"eseva/internal/auth/store/user"
	"eseva/internal/eseva/filestore"
	esevahandler "eseva/internal/eseva/handler"
	esevaservice "eseva/internal/eseva/service"
	esevastore "eseva/internal/eseva/store"
	jwttoken "eseva/internal/jwt_token"
	"eseva/internal/notification"
	"eseva/internal/platform/metrics"
	"eseva/internal/requirements"
	id "eseva/pkg/domain"
	auditpublisher "eseva/pkg/platform/audit/publisher"
	auditmemory "eseva/pkg/platform/audit/store/memory"
	"eseva/pkg/testutil"
)

const testOTP = "123456"

// smsOutbox records delivered messages instead of sending them.
type smsOutbox struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (o *smsOutbox) SendSMS(_ context.Context, mobile, message string) (notification.ProviderResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent[mobile] = append(o.sent[mobile], message)
	return notification.ProviderResult{Success: true}, nil
}

type testServer struct {
	handler http.Handler
	users   *user.InMemoryUserStore
	outbox  *smsOutbox
	audit   *auditmemory.InMemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	users := user.NewInMemoryUserStore()
	trl := revocation.NewInMemoryTRL()
	tokens := jwttoken.NewJWTService("router-test-key", "eseva", "eseva-clients")
	outbox := &smsOutbox{sent: map[string][]string{}}
	auditStore := auditmemory.NewInMemoryStore()
	publisher := auditpublisher.NewPublisher(auditStore, auditpublisher.WithLogger(logger))

	authSvc := authservice.New(users, loginsession.NewInMemoryStore(), outbox, tokens, trl, authservice.Config{},
		authservice.WithAuditPublisher(publisher),
		authservice.WithMetrics(m),
		authservice.WithLogger(logger),
		authservice.WithOTPGenerator(func() (string, error) { return testOTP, nil }),
	)
	files, err := filestore.New(afero.NewMemMapFs(), "/uploads")
	require.NoError(t, err)
	esevaSvc := esevaservice.New(esevastore.NewInMemoryStore(), requirements.NewRegistry(), files,
		esevaservice.WithUserDirectory(users),
		esevaservice.WithAuditPublisher(publisher),
		esevaservice.WithMetrics(m),
		esevaservice.WithLogger(logger),
	)

	return &testServer{
		handler: newRouter(routerDeps{
			logger:      logger,
			metrics:     m,
			gatherer:    reg,
			tokens:      jwttoken.NewJWTServiceAdapter(tokens),
			revocations: trl,
			auth:        authhandler.New(authSvc, logger),
			eseva:       esevahandler.New(esevaSvc, files, logger),
		}),
		users:  users,
		outbox: outbox,
		audit:  auditStore,
	}
}

func (s *testServer) do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	rr := testutil.DoRequest(s.handler, req)
	if rr.Body.Len() == 0 {
		return rr.Code, nil
	}
	return rr.Code, testutil.DecodeJSON[map[string]any](t, rr)
}

// login runs the OTP flow and returns the session token and user id.
func (s *testServer) login(t *testing.T, mobile string) (string, string) {
	t.Helper()
	rr := testutil.DoRequest(s.handler, testutil.NewJSONRequest(t, http.MethodPost, "/auth/send-otp", map[string]string{"mobile": mobile}))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = testutil.DoRequest(s.handler, testutil.NewJSONRequest(t, http.MethodPost, "/auth/verify-otp",
		map[string]string{"mobile": mobile, "otp": testOTP}))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := testutil.DecodeJSON[map[string]any](t, rr)
	return body["token"].(string), body["user"].(map[string]any)["id"].(string)
}

// loginAs logs in once to create the user, grants role, and logs in again so
// the new token carries it.
func (s *testServer) loginAs(t *testing.T, mobile string, role authmodels.Role) string {
	t.Helper()
	_, userID := s.login(t, mobile)
	require.NoError(t, s.users.SetRole(context.Background(), mustUserID(t, userID), role))
	token, _ := s.login(t, mobile)
	return token
}

func mustUserID(t *testing.T, s string) id.UserID {
	t.Helper()
	userID, err := id.ParseUserID(s)
	require.NoError(t, err)
	return userID
}

func (s *testServer) get(t *testing.T, path, token string) *http.Request {
	return testutil.WithBearer(testutil.NewRequestWithBody(t, http.MethodGet, path, ""), token)
}

func (s *testServer) put(t *testing.T, path, token string, body any) *http.Request {
	return testutil.WithBearer(testutil.NewJSONRequest(t, http.MethodPut, path, body), token)
}

func TestApplicationLifecycle(t *testing.T) {
	srv := newTestServer(t)
	var citizenToken, adminToken, agentToken, appID string

	testutil.Given(t, "a citizen logged in by OTP", func(t *testing.T) {
		citizenToken, _ = srv.login(t, "9876543210")
		assert.NotEmpty(t, citizenToken)
		assert.Len(t, srv.outbox.sent["9876543210"], 1)
		assert.Contains(t, srv.outbox.sent["9876543210"][0], testOTP)
	})

	testutil.When(t, "they apply for a birth certificate without every document", func(t *testing.T) {
		req := testutil.NewMultipart(t).
			Field("service_type", "Birth_Certificate").
			Field("applicant_name", "Asha").
			File("hospital_birth_report", "report.pdf", []byte("report")).
			Request(http.MethodPost, "/eseva/apply")
		code, body := srv.do(t, testutil.WithBearer(req, citizenToken))

		testutil.Then(t, "the missing documents are listed", func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, []any{"parents_aadhar_card", "address_proof"}, body["missingDocuments"])
		})
	})

	testutil.When(t, "they apply with every required document", func(t *testing.T) {
		req := testutil.NewMultipart(t).
			Field("service_type", "Birth_Certificate").
			Field("applicant_name", "Asha").
			Field("applicant_details", `{"dob":"2024-02-29","place":"Pune"}`).
			File("hospital_birth_report", "report.pdf", []byte("report")).
			File("parents_aadhar_card", "aadhar.jpg", []byte("aadhar")).
			File("address_proof", "bill.pdf", []byte("bill")).
			Request(http.MethodPost, "/eseva/apply")
		code, body := srv.do(t, testutil.WithBearer(req, citizenToken))

		testutil.Then(t, "the application is created", func(t *testing.T) {
			require.Equal(t, http.StatusCreated, code)
			assert.Equal(t, true, body["success"])
			appID = body["data"].(map[string]any)["applicationId"].(string)
			assert.NotEmpty(t, appID)
		})
	})

	testutil.Then(t, "the citizen sees it in their list as Submitted", func(t *testing.T) {
		code, body := srv.do(t, srv.get(t, "/eseva/list", citizenToken))
		require.Equal(t, http.StatusOK, code)
		apps := body["data"].([]any)
		require.Len(t, apps, 1)
		assert.Equal(t, "Submitted", apps[0].(map[string]any)["status"])
	})

	testutil.And(t, "the details carry all three documents", func(t *testing.T) {
		code, body := srv.do(t, srv.get(t, "/eseva/details/"+appID, citizenToken))
		require.Equal(t, http.StatusOK, code)
		assert.Len(t, body["data"].(map[string]any)["documents"], 3)
	})

	testutil.When(t, "the citizen tries to approve their own application", func(t *testing.T) {
		code, _ := srv.do(t, srv.put(t, "/eseva/update-status/"+appID, citizenToken, map[string]string{"status": "Approved"}))
		testutil.Then(t, "it is forbidden", func(t *testing.T) {
			assert.Equal(t, http.StatusForbidden, code)
		})
	})

	testutil.Given(t, "an agent and an admin", func(t *testing.T) {
		agentToken = srv.loginAs(t, "9000000002", authmodels.RoleAgent)
		adminToken = srv.loginAs(t, "9000000003", authmodels.RoleAdmin)
	})

	testutil.When(t, "the agent processes the application", func(t *testing.T) {
		code, body := srv.do(t, srv.put(t, "/eseva/process/"+appID, agentToken, map[string]string{"remarks": "documents verified"}))
		testutil.Then(t, "it becomes Processed", func(t *testing.T) {
			require.Equal(t, http.StatusOK, code)
			data := body["data"].(map[string]any)
			assert.Equal(t, "Processed", data["status"])
			assert.Equal(t, "documents verified", data["agentRemarks"])
			assert.NotEmpty(t, data["processedAt"])
		})
	})

	testutil.When(t, "the agent tries to approve", func(t *testing.T) {
		code, _ := srv.do(t, srv.put(t, "/eseva/update-status/"+appID, agentToken, map[string]string{"status": "Approved"}))
		testutil.Then(t, "only admins may change status", func(t *testing.T) {
			assert.Equal(t, http.StatusForbidden, code)
		})
	})

	testutil.When(t, "the admin approves", func(t *testing.T) {
		code, body := srv.do(t, srv.put(t, "/eseva/update-status/"+appID, adminToken, map[string]string{"status": "approved", "remarks": "ok"}))
		testutil.Then(t, "the canonical status is stored", func(t *testing.T) {
			require.Equal(t, http.StatusOK, code)
			assert.Equal(t, "Approved", body["data"].(map[string]any)["status"])
		})
	})

	testutil.Then(t, "the admin listing names the submitter and the agent", func(t *testing.T) {
		code, body := srv.do(t, srv.get(t, "/eseva/list", adminToken))
		require.Equal(t, http.StatusOK, code)
		app := body["data"].([]any)[0].(map[string]any)
		assert.Equal(t, "9876543210", app["submitterName"])
		assert.Equal(t, "9000000002", app["agentName"])
		assert.Equal(t, "9000000003", app["adminName"])
	})

	testutil.When(t, "the citizen logs out", func(t *testing.T) {
		req := testutil.WithBearer(testutil.NewRequestWithBody(t, http.MethodPost, "/auth/logout", ""), citizenToken)
		code, _ := srv.do(t, req)
		require.Equal(t, http.StatusOK, code)

		testutil.Then(t, "the token no longer opens /eseva routes", func(t *testing.T) {
			code, body := srv.do(t, srv.get(t, "/eseva/list", citizenToken))
			assert.Equal(t, http.StatusUnauthorized, code)
			assert.Equal(t, "unauthorized", body["error"])
		})
	})

	testutil.And(t, "every mutation was audited", func(t *testing.T) {
		events, err := srv.audit.ListRecent(context.Background(), 100)
		require.NoError(t, err)
		actions := make([]string, 0, len(events))
		for _, e := range events {
			actions = append(actions, e.Action)
		}
		joined := strings.Join(actions, ",")
		for _, want := range []string{"application_submitted", "application_processed", "application_status_updated", "token_revoked"} {
			assert.Contains(t, joined, want)
		}
	})
}

func TestPublicAndProtectedRoutes(t *testing.T) {
	srv := newTestServer(t)

	testutil.When(t, "health is probed", func(t *testing.T) {
		code, body := srv.do(t, testutil.NewRequestWithBody(t, http.MethodGet, "/health", ""))
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body["status"])
	})

	testutil.When(t, "an /eseva route is called without a token", func(t *testing.T) {
		code, _ := srv.do(t, testutil.NewRequestWithBody(t, http.MethodGet, "/eseva/requirements", ""))
		assert.Equal(t, http.StatusUnauthorized, code)
	})

	testutil.When(t, "requirements are fetched with a token", func(t *testing.T) {
		token, _ := srv.login(t, "9123456789")
		code, body := srv.do(t, srv.get(t, "/eseva/requirements", token))
		require.Equal(t, http.StatusOK, code)
		assert.Len(t, body["data"], 6)
	})

	testutil.Then(t, "metrics expose request latency by route", func(t *testing.T) {
		rr := testutil.DoRequest(srv.handler, testutil.NewRequestWithBody(t, http.MethodGet, "/metrics", ""))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `route="/eseva/requirements"`)
		assert.Contains(t, rr.Body.String(), "eseva_otp_sent_total 1")
	})

	testutil.When(t, "a wrong OTP is submitted", func(t *testing.T) {
		rr := testutil.DoRequest(srv.handler, testutil.NewJSONRequest(t, http.MethodPost, "/auth/verify-otp",
			map[string]string{"mobile": "9123456789", "otp": "000000"}))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_otp")
	})

	testutil.When(t, "logout has no token", func(t *testing.T) {
		rr := testutil.DoRequest(srv.handler, testutil.NewRequestWithBody(t, http.MethodPost, "/auth/logout", ""))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})
}
