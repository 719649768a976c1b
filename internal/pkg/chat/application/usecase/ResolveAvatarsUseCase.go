package usecase

import (
	"context"
	"errors"
	"fmt"

	repository "chatsync/internal/pkg/chat/persistence/repository/port"
)

type ResolveAvatarsInput struct {
	SenderIDs []string
}

// ResolveAvatarsUseCase looks up one profile per distinct sender.
type ResolveAvatarsUseCase struct {
	Profiles repository.ProfileRepository
}

func NewResolveAvatarsUseCase(profiles repository.ProfileRepository) *ResolveAvatarsUseCase {
	return &ResolveAvatarsUseCase{Profiles: profiles}
}

// Execute returns senderID -> avatar URL for every sender that has a
// profile. Senders without a profile row are left out. Failed lookups are
// left out too and reported together in the returned error; the map is
// valid even when the error is not nil.
func (uc *ResolveAvatarsUseCase) Execute(ctx context.Context, in ResolveAvatarsInput) (map[string]string, error) {
	out := make(map[string]string, len(in.SenderIDs))
	seen := make(map[string]struct{}, len(in.SenderIDs))
	var errs []error
	for _, id := range in.SenderIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		p, ok, err := uc.Profiles.FindProfile(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: sender %s: %v", ErrPersistence, id, err))
			continue
		}
		if ok {
			out[id] = p.Avatar
		}
	}
	return out, errors.Join(errs...)
}
