package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/forum/internal/model"
	"github.com/sakif/forum/internal/service"
)

type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"max=200"`
	PhotoURL string `json:"photoURL" validate:"omitempty,url"`
}

// HandleRegister creates a user unless the email is already registered.
//
// HTTP: POST /users
// RESPONSE:
//
//	201 {"insertedId": "cv37rs3pp9olc6atsptg"}
//	200 {"message": "user already exists", "insertedId": null}
//
// The second form is not an error. Clients call this on every sign-up
// screen load and expect it to be safe to repeat.
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.users.Register(r.Context(), service.RegisterUserInput{
		Email:    req.Email,
		Name:     req.Name,
		PhotoURL: req.PhotoURL,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if !res.Created {
		writeJSON(w, http.StatusOK, map[string]any{"message": "user already exists", "insertedId": nil})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"insertedId": res.User.ID})
}

// HandleGet: GET /user/{email}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), pathParam(r, "email"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type userListResponse struct {
	Users []model.User `json:"users"`
	Count int          `json:"count"`
}

// HandleList: GET /users?search=&page=&size= (admin)
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	paging, err := pagingFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	users, total, err := h.users.List(r.Context(), callerEmail(r), r.URL.Query().Get("search"), paging)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userListResponse{Users: nonNil(users), Count: total})
}

type setRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin member"`
}

// HandleSetRole: PATCH /user/role/{id} with {"role": "admin"} (admin)
func (h *UserHandler) HandleSetRole(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.users.SetRole(r.Context(), callerEmail(r), pathParam(r, "id"), model.Role(req.Role)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"modifiedCount": 1})
}
