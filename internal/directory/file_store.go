package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore implements Store with the same table semantics as MemoryStore,
// persisted as a single JSON document {users, groups, memberships}. Every
// mutation runs on a clone and is written atomically (temp file + rename)
// before it becomes visible, so a crashed or failed write leaves the
// previous document intact.
type FileStore struct {
	mu   sync.RWMutex
	path string
	data *dataset
}

// NewFileStore opens or creates the JSON document at path.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, data: newDataset()}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		if err := s.save(s.data); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}

	if err := json.Unmarshal(raw, s.data); err != nil {
		return nil, fmt.Errorf("failed to parse data file %s: %w", path, err)
	}
	if s.data.Users == nil || s.data.Groups == nil || s.data.Memberships == nil {
		return nil, fmt.Errorf("data file %s has an invalid structure", path)
	}
	return s, nil
}

func (s *FileStore) save(d *dataset) error {
	raw, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode data file: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write data file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace data file: %w", err)
	}
	return nil
}

func (s *FileStore) mutate(fn func(*dataset) *Error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scratch := s.data.clone()
	if derr := fn(scratch); derr != nil {
		return derr
	}
	if err := s.save(scratch); err != nil {
		return NewInternalError("FileStore", err)
	}
	s.data = scratch
	return nil
}

func (s *FileStore) ListUsers(ctx context.Context, startIndex, count int) ([]User, int, error) {
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

func (s *FileStore) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ui := s.data.userIndexByID(id)
	if ui < 0 {
		return nil, NewNotFoundError("User", "user not found")
	}
	u := s.data.hydrateUser(s.data.Users[ui])
	return &u, nil
}

func (s *FileStore) FilterUsers(ctx context.Context, attribute, value string, startIndex, count int) ([]User, int, error) {
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

func (s *FileStore) CreateUser(ctx context.Context, model *UserModel) (*User, error) {
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

func (s *FileStore) UpdateUser(ctx context.Context, id string, model *UserModel) (*User, error) {
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

func (s *FileStore) PatchUser(ctx context.Context, id string, ops []PatchOperation) (*User, error) {
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

func (s *FileStore) DeleteUser(ctx context.Context, id string) error {
	return s.mutate(func(d *dataset) *Error {
		return d.deleteUser(id)
	})
}

func (s *FileStore) ListGroups(ctx context.Context, startIndex, count int) ([]Group, int, error) {
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

func (s *FileStore) GetGroup(ctx context.Context, id string) (*Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	gi := s.data.groupIndexByID(id)
	if gi < 0 {
		return nil, NewNotFoundError("Group", "group not found")
	}
	g := s.data.hydrateGroup(s.data.Groups[gi])
	return &g, nil
}

func (s *FileStore) FilterGroups(ctx context.Context, attribute, value string, startIndex, count int) ([]Group, int, error) {
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

func (s *FileStore) CreateGroup(ctx context.Context, model *GroupModel) (*Group, error) {
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

func (s *FileStore) UpdateGroup(ctx context.Context, id string, model *GroupModel) (*Group, error) {
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

func (s *FileStore) PatchGroup(ctx context.Context, id string, ops []PatchOperation) (*Group, error) {
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

func (s *FileStore) DeleteGroup(ctx context.Context, id string) error {
	return s.mutate(func(d *dataset) *Error {
		return d.deleteGroup(id)
	})
}

func (s *FileStore) GroupsForUser(ctx context.Context, id string) ([]GroupRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.data.userIndexByID(id) < 0 {
		return nil, NewNotFoundError("User", "user not found")
	}
	return s.data.groupsForUser(id), nil
}

func (s *FileStore) MembersForGroup(ctx context.Context, id string) ([]MemberRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.data.groupIndexByID(id) < 0 {
		return nil, NewNotFoundError("Group", "group not found")
	}
	return s.data.membersForGroup(id), nil
}

func (s *FileStore) Seed(ctx context.Context) error {
	return s.mutate(func(d *dataset) *Error {
		d.seed()
		return nil
	})
}

func (s *FileStore) Close() error {
	return nil
}
