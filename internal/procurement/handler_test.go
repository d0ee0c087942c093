package procurement

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/procura-erp/procura-erp/internal/shared"
)

func newTestRouter(t *testing.T, svc *Service) chi.Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, svc, shared.Authz{Logger: logger})
	r := chi.NewRouter()
	r.Route("/requisitions", handler.MountRequisitionRoutes)
	r.Route("/purchase-orders", handler.MountPurchaseOrderRoutes)
	return r
}

func withSession(r *http.Request, userID, role string) *http.Request {
	sess := &shared.Session{}
	sess.SetUser(userID, role)
	return r.WithContext(shared.ContextWithSession(r.Context(), sess))
}

func TestApprovalEndpointsAreRoleGated(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	pr, _, err := svc.CreateRequisition(context.Background(), createInput(LineItemInput{Description: "A", Qty: 1, UnitCost: 1}))
	require.NoError(t, err)
	router := newTestRouter(t, svc)

	// No session at all.
	req := httptest.NewRequest(http.MethodPost, "/requisitions/1/accountant-approval", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Office head cannot reach approval endpoints.
	req = withSession(httptest.NewRequest(http.MethodPost, "/requisitions/1/accountant-approval", nil), "1", shared.RoleOfficeHead)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Accountant can.
	req = withSession(httptest.NewRequest(http.MethodPost, "/requisitions/1/accountant-approval", nil), "2", shared.RoleAccountant)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), pr.PRNo)

	// Repeating the decision maps to 409.
	req = withSession(httptest.NewRequest(http.MethodPost, "/requisitions/1/accountant-approval", nil), "2", shared.RoleAccountant)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRejectionEndpointRequiresReason(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	_, _, err := svc.CreateRequisition(context.Background(), createInput(LineItemInput{Description: "A", Qty: 1, UnitCost: 1}))
	require.NoError(t, err)
	router := newTestRouter(t, svc)

	req := withSession(httptest.NewRequest(http.MethodPost, "/requisitions/1/rejection", strings.NewReader(`{}`)), "3", shared.RolePresident)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = withSession(httptest.NewRequest(http.MethodPost, "/requisitions/1/rejection", strings.NewReader(`{"reason":"no funds"}`)), "3", shared.RolePresident)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "REJECTED")
}

func TestPrematureConversionMapsToConflict(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	_, _, err := svc.CreateRequisition(context.Background(), createInput(LineItemInput{Description: "A", Qty: 1, UnitCost: 1}))
	require.NoError(t, err)
	router := newTestRouter(t, svc)

	// Still pending, so opening a quotation request is a business-rule
	// conflict, not an unprocessable entity.
	req := withSession(httptest.NewRequest(http.MethodPost, "/requisitions/1/quotation-request", nil), "1", shared.RoleOfficeHead)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateRequisitionRequiresOfficeHead(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	router := newTestRouter(t, svc)

	req := withSession(httptest.NewRequest(http.MethodPost, "/requisitions/", nil), "2", shared.RoleAccountant)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
