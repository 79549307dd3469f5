package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/fundtrail/fundtrail/pkg/auth/api"
	"github.com/labstack/echo/v4"
)

const (
	XFundTrailUserIDHeader   = "X-FundTrail-UserId"
	XFundTrailUserRoleHeader = "X-FundTrail-UserRole"
)

func AuthorizeHandler(h echo.HandlerFunc, minRole api.Role) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if err := RequireMinRole(ctx, minRole); err != nil {
			return err
		}

		return h(ctx)
	}
}

// RequireMinRole verifies the caller's role server-side from the trusted
// gateway header, not from any client-supplied claim in the body.
func RequireMinRole(ctx echo.Context, minRole api.Role) error {
	if !hasAccess(GetUserRole(ctx), minRole) {
		return echo.NewHTTPError(http.StatusForbidden, "missing required permission")
	}

	return nil
}

func GetUserRole(ctx echo.Context) api.Role {
	role := ctx.Request().Header.Get(XFundTrailUserRoleHeader)
	if strings.TrimSpace(role) == "" {
		return api.ViewerRole
	}

	return api.GetRole(role)
}

func GetUserID(ctx echo.Context) string {
	id := ctx.Request().Header.Get(XFundTrailUserIDHeader)
	if strings.TrimSpace(id) == "" {
		panic(fmt.Errorf("header %s is missing", XFundTrailUserIDHeader))
	}

	return id
}

func roleToPriority(role api.Role) int {
	switch role {
	case api.ViewerRole:
		return 0
	case api.EditorRole:
		return 1
	case api.AdminRole:
		return 2
	case api.InternalRole:
		return 99
	default:
		panic("unsupported role: " + role)
	}
}

func hasAccess(currRole, minRole api.Role) bool {
	return roleToPriority(currRole) >= roleToPriority(minRole)
}
