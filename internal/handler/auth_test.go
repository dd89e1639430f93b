package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/campus-placement/internal/config"
	"github.com/iliyamo/campus-placement/internal/model"
)

// recordingUsers embeds UserStore so tests only override Create.
type recordingUsers struct {
	UserStore
	created int
}

func (r *recordingUsers) Create(context.Context, string, string, string, string, int) (uint64, error) {
	r.created++
	return 0, nil
}

func TestRegistrationRole(t *testing.T) {
	h := &AuthHandler{Cfg: config.Config{AdminSecretKey: "admin-key", SuperAdminSecretKey: "root-key"}}
	cases := []struct {
		requested, secret string
		want              string
		ok                bool
	}{
		{"", "", model.RoleStudent, true},
		{" Student ", "anything", model.RoleStudent, true},
		{"admin", "admin-key", model.RoleAdmin, true},
		{"superadmin", "root-key", model.RoleSuperAdmin, true},
		{"admin", "root-key", model.RoleSuperAdmin, true},
		{"admin", "admin-ke", "", false},
		{"admin", "admin-key ", "", false},
		{"admin", "", "", false},
		{"owner", "admin-key", "", false},
	}
	for _, tc := range cases {
		got, ok := h.registrationRole(tc.requested, tc.secret)
		if got != tc.want || ok != tc.ok {
			t.Errorf("registrationRole(%q, %q) = %q, %v; want %q, %v", tc.requested, tc.secret, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRegistrationRoleUnsetKeysNeverMatch(t *testing.T) {
	h := &AuthHandler{}
	for _, secret := range []string{"", "x"} {
		if role, ok := h.registrationRole("admin", secret); ok {
			t.Fatalf("secret %q granted %s with no keys configured", secret, role)
		}
	}
}

func TestRegisterRejectsWrongSecretBeforeCreatingUser(t *testing.T) {
	users := &recordingUsers{}
	h := NewAuthHandler(config.Config{AdminSecretKey: "admin-key"}, users, nil, zap.NewNop())
	e := echo.New()
	e.POST("/v1/auth/register", h.Register)

	body := `{"email":"a@campus.test","full_name":"A","password":"passw0rd!","role":"admin","secret_key":"guess"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/register", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if users.created != 0 {
		t.Fatal("user created with a wrong secret")
	}
}
