package directory

import "context"

// Store is the resource repository every backend implements. All list
// operations use 1-based pagination: startIndex <= 0 defaults to 1 and
// count <= 0 means all remaining entries. Every method returns either a
// domain result or a *Error; mutating calls touching memberships are atomic.
type Store interface {
	ListUsers(ctx context.Context, startIndex, count int) ([]User, int, error)
	GetUser(ctx context.Context, id string) (*User, error)
	FilterUsers(ctx context.Context, attribute, value string, startIndex, count int) ([]User, int, error)
	CreateUser(ctx context.Context, model *UserModel) (*User, error)
	UpdateUser(ctx context.Context, id string, model *UserModel) (*User, error)
	PatchUser(ctx context.Context, id string, ops []PatchOperation) (*User, error)
	DeleteUser(ctx context.Context, id string) error

	ListGroups(ctx context.Context, startIndex, count int) ([]Group, int, error)
	GetGroup(ctx context.Context, id string) (*Group, error)
	FilterGroups(ctx context.Context, attribute, value string, startIndex, count int) ([]Group, int, error)
	CreateGroup(ctx context.Context, model *GroupModel) (*Group, error)
	UpdateGroup(ctx context.Context, id string, model *GroupModel) (*Group, error)
	PatchGroup(ctx context.Context, id string, ops []PatchOperation) (*Group, error)
	DeleteGroup(ctx context.Context, id string) error

	GroupsForUser(ctx context.Context, id string) ([]GroupRef, error)
	MembersForGroup(ctx context.Context, id string) ([]MemberRef, error)

	// Seed populates an empty backend with sample data. It is a no-op when
	// any user already exists.
	Seed(ctx context.Context) error

	Close() error
}
