package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/access"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/middleware"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req access.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, access.OpLogin, err)
		return
	}

	result, err := s.service.Login(r.Context(), req)
	if err != nil {
		writeError(w, r, access.OpLogin, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Login successful",
		"user":    result.User,
		"tokens":  result.Tokens,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req access.RefreshRequest
	if err := decodeJSON(r, &req); err != nil {
		// the refresh token is the credential here
		writeError(w, r, access.OpRefresh, s.service.MissingCredentials(access.OpRefresh))
		return
	}

	pair, err := s.service.Refresh(r.Context(), req)
	if err != nil {
		writeError(w, r, access.OpRefresh, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req access.RefreshRequest
	if err := decodeJSON(r, &req); err != nil {
		// the refresh token is the credential here
		writeError(w, r, access.OpLogout, s.service.MissingCredentials(access.OpLogout))
		return
	}

	if err := s.service.Logout(r.Context(), req); err != nil {
		writeError(w, r, access.OpLogout, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) handleOwnPermissions(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.GetOwnPermissions(r.Context(), middleware.TokenFromContext(r.Context()))
	if err != nil {
		writeError(w, r, access.OpGetOwnPermissions, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

func (s *Server) handlePages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.service.ListPages(r.Context(), middleware.TokenFromContext(r.Context()))
	if err != nil {
		writeError(w, r, access.OpListPages, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pages": pages})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.service.ListUsers(r.Context(), middleware.TokenFromContext(r.Context()))
	if err != nil {
		writeError(w, r, access.OpListUsers, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromContext(r.Context())
	ctx, err := s.service.Authorize(r.Context(), access.OpCreateUser, token)
	if err != nil {
		writeError(w, r, access.OpCreateUser, err)
		return
	}

	var req access.CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, access.OpCreateUser, err)
		return
	}

	id, err := s.service.CreateUser(ctx, token, req)
	if err != nil {
		writeError(w, r, access.OpCreateUser, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "User created successfully",
		"user_id": id,
	})
}

func (s *Server) handleSetPermission(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromContext(r.Context())
	ctx, err := s.service.Authorize(r.Context(), access.OpSetPagePermission, token)
	if err != nil {
		writeError(w, r, access.OpSetPagePermission, err)
		return
	}

	var req access.SetPermissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, access.OpSetPagePermission, err)
		return
	}

	entry, err := s.service.SetPagePermission(ctx, token, pathUserID(r), req)
	if err != nil {
		writeError(w, r, access.OpSetPagePermission, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Permissions updated successfully",
		"permission": entry,
	})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := pathUserID(r)

	if err := s.service.DeleteUser(r.Context(), middleware.TokenFromContext(r.Context()), userID); err != nil {
		writeError(w, r, access.OpDeleteUser, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
}

// pathUserID parses the {user_id} route variable. Values that overflow an
// int64 become 0, which no account has, so the service still authorizes the
// caller before reporting NotFound.
func pathUserID(r *http.Request) int64 {
	id, err := strconv.ParseInt(mux.Vars(r)["user_id"], 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}
