package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/domain"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/repository"
	"github.com/Karthikchakala/HospitalManagement/pkg/middleware"
)

var (
	ErrUnsupportedRole = errors.New("role cannot use chat")
	ErrNoDomainRecord  = errors.New("no patient or doctor record for user")
)

// PrincipalResolver turns an access token into the patient or doctor behind it.
type PrincipalResolver struct {
	tokens    middleware.TokenValidator
	directory repository.DirectoryRepository
}

func NewPrincipalResolver(tokens middleware.TokenValidator, directory repository.DirectoryRepository) *PrincipalResolver {
	return &PrincipalResolver{tokens: tokens, directory: directory}
}

// Resolve validates token and maps its user to a chat principal.
func (r *PrincipalResolver) Resolve(ctx context.Context, token string) (*domain.Principal, error) {
	claims, err := r.tokens.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	return r.ForUser(ctx, claims.UserID, claims.Role)
}

// ForUser maps an authenticated user id and role to a chat principal.
func (r *PrincipalResolver) ForUser(ctx context.Context, userID, role string) (*domain.Principal, error) {
	uid, err := strconv.ParseInt(userID, 10, 64)
	if err != nil || uid <= 0 {
		return nil, fmt.Errorf("%w: invalid user id %q", domain.ErrUnauthorized, userID)
	}

	var id int64
	switch domain.SenderType(role) {
	case domain.SenderPatient:
		id, err = r.directory.PatientIDByUser(ctx, uid)
	case domain.SenderDoctor:
		id, err = r.directory.DoctorIDByUser(ctx, uid)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedRole, role)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNoDomainRecord, uid)
		}
		return nil, err
	}

	return &domain.Principal{UserID: userID, Role: domain.SenderType(role), ID: id}, nil
}
