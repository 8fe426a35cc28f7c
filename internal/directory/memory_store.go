package directory

import (
	"context"
	"sync"
)

// MemoryStore implements Store with in-process tables. A single mutex
// serializes mutating calls; reads proceed concurrently. Mutations run on a
// clone of the tables and swap it in only on success, so a failed
// multi-step mutation is never observable.
type MemoryStore struct {
	mu   sync.RWMutex
	data *dataset
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newDataset()}
}

func (s *MemoryStore) mutate(fn func(*dataset) *Error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scratch := s.data.clone()
	if derr := fn(scratch); derr != nil {
		return derr
	}
	s.data = scratch
	return nil
}

func (s *MemoryStore) ListUsers(ctx context.Context, startIndex, count int) ([]User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.data.Users)
	if total == 0 {
		return nil, 0, NewNotFoundError("User", "no users found")
	}
	lo, hi := pageBounds(startIndex, count, total)
	items := make([]User, 0, hi-lo)
	for _, u := range s.data.Users[lo:hi] {
		items = append(items, s.data.hydrateUser(u))
	}
	return items, total, nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ui := s.data.userIndexByID(id)
	if ui < 0 {
		return nil, NewNotFoundError("User", "user not found")
	}
	u := s.data.hydrateUser(s.data.Users[ui])
	return &u, nil
}

func (s *MemoryStore) FilterUsers(ctx context.Context, attribute, value string, startIndex, count int) ([]User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	extract, ok := userFilterAttrs[attribute]
	if !ok {
		return nil, 0, NewBadRequestError("User", "unsupported filter attribute: "+attribute)
	}
	value = TrimFilterValue(value)

	matched := []User{}
	for i := range s.data.Users {
		if extract(&s.data.Users[i]) == value {
			matched = append(matched, s.data.Users[i])
		}
	}
	if len(matched) == 0 {
		return nil, 0, NewNotFoundError("User", "no users found matching filter")
	}
	lo, hi := pageBounds(startIndex, count, len(matched))
	items := make([]User, 0, hi-lo)
	for _, u := range matched[lo:hi] {
		items = append(items, s.data.hydrateUser(u))
	}
	return items, len(matched), nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, model *UserModel) (*User, error) {
	var created *User
	err := s.mutate(func(d *dataset) *Error {
		u, derr := d.createUser(model)
		created = u
		return derr
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *MemoryStore) UpdateUser(ctx context.Context, id string, model *UserModel) (*User, error) {
	var updated *User
	err := s.mutate(func(d *dataset) *Error {
		u, derr := d.updateUser(id, model)
		updated = u
		return derr
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *MemoryStore) PatchUser(ctx context.Context, id string, ops []PatchOperation) (*User, error) {
	var patched *User
	err := s.mutate(func(d *dataset) *Error {
		u, derr := d.patchUser(id, ops)
		patched = u
		return derr
	})
	if err != nil {
		return nil, err
	}
	return patched, nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, id string) error {
	return s.mutate(func(d *dataset) *Error {
		return d.deleteUser(id)
	})
}

func (s *MemoryStore) ListGroups(ctx context.Context, startIndex, count int) ([]Group, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.data.Groups)
	if total == 0 {
		return nil, 0, NewNotFoundError("Group", "no groups found")
	}
	lo, hi := pageBounds(startIndex, count, total)
	items := make([]Group, 0, hi-lo)
	for _, g := range s.data.Groups[lo:hi] {
		items = append(items, s.data.hydrateGroup(g))
	}
	return items, total, nil
}

func (s *MemoryStore) GetGroup(ctx context.Context, id string) (*Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	gi := s.data.groupIndexByID(id)
	if gi < 0 {
		return nil, NewNotFoundError("Group", "group not found")
	}
	g := s.data.hydrateGroup(s.data.Groups[gi])
	return &g, nil
}

func (s *MemoryStore) FilterGroups(ctx context.Context, attribute, value string, startIndex, count int) ([]Group, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	extract, ok := groupFilterAttrs[attribute]
	if !ok {
		return nil, 0, NewBadRequestError("Group", "unsupported filter attribute: "+attribute)
	}
	value = TrimFilterValue(value)

	matched := []Group{}
	for i := range s.data.Groups {
		if extract(&s.data.Groups[i]) == value {
			matched = append(matched, s.data.Groups[i])
		}
	}
	if len(matched) == 0 {
		return nil, 0, NewNotFoundError("Group", "no groups found matching filter")
	}
	lo, hi := pageBounds(startIndex, count, len(matched))
	items := make([]Group, 0, hi-lo)
	for _, g := range matched[lo:hi] {
		items = append(items, s.data.hydrateGroup(g))
	}
	return items, len(matched), nil
}

func (s *MemoryStore) CreateGroup(ctx context.Context, model *GroupModel) (*Group, error) {
	var created *Group
	err := s.mutate(func(d *dataset) *Error {
		g, derr := d.createGroup(model)
		created = g
		return derr
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *MemoryStore) UpdateGroup(ctx context.Context, id string, model *GroupModel) (*Group, error) {
	var updated *Group
	err := s.mutate(func(d *dataset) *Error {
		g, derr := d.updateGroup(id, model)
		updated = g
		return derr
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *MemoryStore) PatchGroup(ctx context.Context, id string, ops []PatchOperation) (*Group, error) {
	var patched *Group
	err := s.mutate(func(d *dataset) *Error {
		g, derr := d.patchGroup(id, ops)
		patched = g
		return derr
	})
	if err != nil {
		return nil, err
	}
	return patched, nil
}

func (s *MemoryStore) DeleteGroup(ctx context.Context, id string) error {
	return s.mutate(func(d *dataset) *Error {
		return d.deleteGroup(id)
	})
}

func (s *MemoryStore) GroupsForUser(ctx context.Context, id string) ([]GroupRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.data.userIndexByID(id) < 0 {
		return nil, NewNotFoundError("User", "user not found")
	}
	return s.data.groupsForUser(id), nil
}

func (s *MemoryStore) MembersForGroup(ctx context.Context, id string) ([]MemberRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.data.groupIndexByID(id) < 0 {
		return nil, NewNotFoundError("Group", "group not found")
	}
	return s.data.membersForGroup(id), nil
}

func (s *MemoryStore) Seed(ctx context.Context) error {
	return s.mutate(func(d *dataset) *Error {
		d.seed()
		return nil
	})
}

func (s *MemoryStore) Close() error {
	return nil
}
