package fedi

import "context"

type AccountStore interface {
	Find(c context.Context, id string) (*Account, error)
	FindByEmail(c context.Context, email string) (*Account, error)
	FindByUsername(c context.Context, username string) (*Account, error)
	Save(c context.Context, account *Account) error
	UpdateStatus(c context.Context, id string, status AccountStatus) error
	UpdateHideCollections(c context.Context, id string, hide bool) error
}

type FollowStore interface {
	Follow(c context.Context, fromID string, toID string) error
	RequestFollow(c context.Context, fromID string, toID string) error
	Unfollow(c context.Context, fromID string, toID string) error
	FindFollowStatus(c context.Context, fromID string, toID string) (FollowStatus, error)
	// CountFollowers returns the number of actors following toID.
	CountFollowers(c context.Context, toID string) (int, error)
	// ListFollowersPage returns follower actor IDs for a 1-based page,
	// oldest follow first. A page past the end returns an empty slice.
	ListFollowersPage(c context.Context, toID string, page int, size int) ([]string, error)
	CountFollowing(c context.Context, fromID string) (int, error)
	ListFollowingPage(c context.Context, fromID string, page int, size int) ([]string, error)
}
