package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loomline/loomline/internal/tenancy"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func request(p *tenancy.Principal) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if p != nil {
		req = req.WithContext(tenancy.WithPrincipal(req.Context(), p))
	}
	return req
}

func TestRequireAny(t *testing.T) {
	mw := Middleware{Logger: testLogger()}
	guarded := mw.RequireAny("orders:read", "orders:write")(okHandler())

	t.Run("anonymous", func(t *testing.T) {
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, request(nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing permission", func(t *testing.T) {
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, request(&tenancy.Principal{UserID: 1, Permissions: []string{"reports:read"}}))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("one of the codes suffices", func(t *testing.T) {
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, request(&tenancy.Principal{UserID: 1, Permissions: []string{"orders:write"}}))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRequireSuperAdmin(t *testing.T) {
	mw := Middleware{Logger: testLogger()}
	guarded := mw.RequireSuperAdmin(okHandler())
	tenantID := int64(4)

	t.Run("anonymous", func(t *testing.T) {
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, request(nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("tenant user denied", func(t *testing.T) {
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, request(&tenancy.Principal{UserID: 1, TenantID: &tenantID, TenantOwner: true}))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("super admin admitted", func(t *testing.T) {
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, request(&tenancy.Principal{UserID: 1, SuperAdmin: true}))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
