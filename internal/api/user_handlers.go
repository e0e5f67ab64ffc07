package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/alreadydone/alreadydone-server/internal/domain"
)

func (s *Server) registerUserRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "updateUser",
		Method:      http.MethodPatch,
		Path:        "/api/users/{id}",
		Summary:     "Update user",
		Description: "Changes only the fields present in the body. A password is hashed before it is stored.",
		Tags:        []string{"Users"},
	}, s.handleUpdateUser)
}

// UpdateUserInput wraps the user patch for Huma.
type UpdateUserInput struct {
	ID   int64 `path:"id" doc:"User ID"`
	Body domain.UserPatch
}

// UserOutput wraps a user for Huma.
type UserOutput struct {
	Body *domain.User
}

func (s *Server) handleUpdateUser(ctx context.Context, input *UpdateUserInput) (*UserOutput, error) {
	user, err := s.services.User.Update(ctx, input.ID, input.Body)
	if err != nil {
		return nil, err
	}
	return &UserOutput{Body: user}, nil
}
