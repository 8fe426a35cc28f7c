package directory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreTests exercises the full Store contract against a backend. The
// memory and file stores must behave identically, so every case runs
// through here for both.
func runStoreTests(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	newUser := func(userName, given, family string) *UserModel {
		return &UserModel{
			Active:     true,
			UserName:   userName,
			GivenName:  given,
			FamilyName: family,
			Email:      userName,
		}
	}

	t.Run("CreateAndGetUser", func(t *testing.T) {
		s := open(t)
		created, err := s.CreateUser(ctx, newUser("a@x.com", "A", "B"))
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)

		got, err := s.GetUser(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", got.UserName)
		assert.Equal(t, "A", got.GivenName)
		assert.Equal(t, "B", got.FamilyName)
		assert.Equal(t, "a@x.com", got.Email)
		assert.True(t, got.Active)
		assert.Empty(t, got.Groups)
	})

	t.Run("CreateUserConflict", func(t *testing.T) {
		s := open(t)
		_, err := s.CreateUser(ctx, newUser("dup@x.com", "A", "B"))
		require.NoError(t, err)

		_, err = s.CreateUser(ctx, newUser("dup@x.com", "C", "D"))
		require.Error(t, err)
		assert.True(t, IsConflict(err))
	})

	t.Run("CreateUserRequiresUserName", func(t *testing.T) {
		s := open(t)
		_, err := s.CreateUser(ctx, &UserModel{GivenName: "A"})
		require.Error(t, err)
		assert.True(t, IsBadRequest(err))
	})

	t.Run("GetUserNotFound", func(t *testing.T) {
		s := open(t)
		_, err := s.GetUser(ctx, "missing")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})

	t.Run("ListUsersEmptySet", func(t *testing.T) {
		s := open(t)
		_, _, err := s.ListUsers(ctx, 1, 10)
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})

	t.Run("ListUsersPagination", func(t *testing.T) {
		s := open(t)
		names := []string{"u1@x.com", "u2@x.com", "u3@x.com", "u4@x.com", "u5@x.com"}
		for _, n := range names {
			_, err := s.CreateUser(ctx, newUser(n, "U", "X"))
			require.NoError(t, err)
		}

		items, total, err := s.ListUsers(ctx, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, items, 2)
		assert.Equal(t, "u2@x.com", items[0].UserName)
		assert.Equal(t, "u3@x.com", items[1].UserName)

		// Defaults: startIndex 1, count all remaining.
		items, total, err = s.ListUsers(ctx, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Len(t, items, 5)

		// A page past the end is empty, not an error.
		items, total, err = s.ListUsers(ctx, 10, 2)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Empty(t, items)
	})

	t.Run("FilterUsers", func(t *testing.T) {
		s := open(t)
		_, err := s.CreateUser(ctx, newUser("f1@x.com", "Ann", "Lee"))
		require.NoError(t, err)
		_, err = s.CreateUser(ctx, newUser("f2@x.com", "Bob", "Lee"))
		require.NoError(t, err)

		items, total, err := s.FilterUsers(ctx, "userName", "f1@x.com", 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, items, 1)
		assert.Equal(t, "Ann", items[0].GivenName)

		// Quoted values are trimmed before comparison.
		items, _, err = s.FilterUsers(ctx, "givenName", `"Bob"`, 0, 0)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "f2@x.com", items[0].UserName)

		items, total, err = s.FilterUsers(ctx, "familyName", "Lee", 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, items, 2)

		// No match is NotFound, not an empty success.
		_, _, err = s.FilterUsers(ctx, "userName", "nobody@x.com", 0, 0)
		require.Error(t, err)
		assert.True(t, IsNotFound(err))

		// Unsupported attribute is rejected outright.
		_, _, err = s.FilterUsers(ctx, "password", "x", 0, 0)
		require.Error(t, err)
		assert.True(t, IsBadRequest(err))
	})

	t.Run("UpdateUserReplacesScalars", func(t *testing.T) {
		s := open(t)
		created, err := s.CreateUser(ctx, newUser("up@x.com", "Old", "Name"))
		require.NoError(t, err)

		updated, err := s.UpdateUser(ctx, created.ID, &UserModel{
			Active:     false,
			UserName:   "up@x.com",
			GivenName:  "New",
			FamilyName: "Name",
			Email:      "up@x.com",
		})
		require.NoError(t, err)
		assert.False(t, updated.Active)
		assert.Equal(t, "New", updated.GivenName)
	})

	t.Run("UpdateUserWithoutGroupsKeepsMemberships", func(t *testing.T) {
		s := open(t)
		user, err := s.CreateUser(ctx, newUser("m@x.com", "M", "N"))
		require.NoError(t, err)
		group, err := s.CreateGroup(ctx, &GroupModel{
			DisplayName: "Engineers",
			Members:     []RefModel{{Value: user.ID}},
		})
		require.NoError(t, err)

		// A nil groups list must leave the membership untouched.
		updated, err := s.UpdateUser(ctx, user.ID, &UserModel{
			Active:   true,
			UserName: "m@x.com",
		})
		require.NoError(t, err)
		require.Len(t, updated.Groups, 1)
		assert.Equal(t, group.ID, updated.Groups[0].Value)

		// An empty non-nil list clears it.
		updated, err = s.UpdateUser(ctx, user.ID, &UserModel{
			Active:   true,
			UserName: "m@x.com",
			Groups:   []RefModel{},
		})
		require.NoError(t, err)
		assert.Empty(t, updated.Groups)
	})

	t.Run("CreateUserResolvesGroupRefs", func(t *testing.T) {
		s := open(t)
		group, err := s.CreateGroup(ctx, &GroupModel{DisplayName: "Staff"})
		require.NoError(t, err)

		// By id.
		u1, err := s.CreateUser(ctx, &UserModel{
			UserName: "g1@x.com",
			Groups:   []RefModel{{Value: group.ID}},
		})
		require.NoError(t, err)
		require.Len(t, u1.Groups, 1)
		assert.Equal(t, "Staff", u1.Groups[0].Display)
		assert.Equal(t, "../Groups/"+group.ID, u1.Groups[0].Ref)

		// By display name.
		u2, err := s.CreateUser(ctx, &UserModel{
			UserName: "g2@x.com",
			Groups:   []RefModel{{Display: "Staff"}},
		})
		require.NoError(t, err)
		require.Len(t, u2.Groups, 1)
		assert.Equal(t, group.ID, u2.Groups[0].Value)

		// Unresolvable ref fails the whole create.
		_, err = s.CreateUser(ctx, &UserModel{
			UserName: "g3@x.com",
			Groups:   []RefModel{{Value: "nope"}},
		})
		require.Error(t, err)
		assert.True(t, IsBadRequest(err))
		_, _, err = s.FilterUsers(ctx, "userName", "g3@x.com", 0, 0)
		assert.True(t, IsNotFound(err))
	})

	t.Run("PatchUserScalars", func(t *testing.T) {
		s := open(t)
		created, err := s.CreateUser(ctx, newUser("p@x.com", "P", "Q"))
		require.NoError(t, err)

		patched, err := s.PatchUser(ctx, created.ID, []PatchOperation{
			{Op: OpReplace, Fields: map[string]any{"givenName": "Patched", "active": false}},
		})
		require.NoError(t, err)
		assert.Equal(t, "Patched", patched.GivenName)
		assert.False(t, patched.Active)

		// Replace is idempotent.
		again, err := s.PatchUser(ctx, created.ID, []PatchOperation{
			{Op: OpReplace, Fields: map[string]any{"givenName": "Patched", "active": false}},
		})
		require.NoError(t, err)
		assert.Equal(t, patched.GivenName, again.GivenName)
		assert.Equal(t, patched.Active, again.Active)
	})

	t.Run("PatchUserRejectsMembers", func(t *testing.T) {
		s := open(t)
		created, err := s.CreateUser(ctx, newUser("pm@x.com", "P", "M"))
		require.NoError(t, err)

		_, err = s.PatchUser(ctx, created.ID, []PatchOperation{
			{Op: OpAdd, Path: "members", Members: []RefModel{{Value: "x"}}},
		})
		require.Error(t, err)
		assert.True(t, IsBadRequest(err))
	})

	t.Run("PatchUserUnsupportedOp", func(t *testing.T) {
		s := open(t)
		created, err := s.CreateUser(ctx, newUser("po@x.com", "P", "O"))
		require.NoError(t, err)

		_, err = s.PatchUser(ctx, created.ID, []PatchOperation{{Op: "move"}})
		require.Error(t, err)
		assert.True(t, IsForbidden(err))
	})

	t.Run("PatchUserRemoveIsNoop", func(t *testing.T) {
		s := open(t)
		created, err := s.CreateUser(ctx, newUser("pr@x.com", "P", "R"))
		require.NoError(t, err)

		patched, err := s.PatchUser(ctx, created.ID, []PatchOperation{{Op: OpRemove, Path: "givenName"}})
		require.NoError(t, err)
		assert.Equal(t, "P", patched.GivenName)
	})

	t.Run("DeleteUserCascades", func(t *testing.T) {
		s := open(t)
		user, err := s.CreateUser(ctx, newUser("d@x.com", "D", "E"))
		require.NoError(t, err)
		group, err := s.CreateGroup(ctx, &GroupModel{
			DisplayName: "Doomed",
			Members:     []RefModel{{Value: user.ID}},
		})
		require.NoError(t, err)

		require.NoError(t, s.DeleteUser(ctx, user.ID))

		_, err = s.GetUser(ctx, user.ID)
		assert.True(t, IsNotFound(err))

		got, err := s.GetGroup(ctx, group.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Members)

		err = s.DeleteUser(ctx, user.ID)
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})

	t.Run("GroupLifecycle", func(t *testing.T) {
		s := open(t)
		user, err := s.CreateUser(ctx, newUser("gm@x.com", "Grace", "Member"))
		require.NoError(t, err)

		group, err := s.CreateGroup(ctx, &GroupModel{
			DisplayName: "Ops",
			Members:     []RefModel{{Value: user.ID}},
		})
		require.NoError(t, err)
		require.Len(t, group.Members, 1)
		assert.Equal(t, "Grace Member", group.Members[0].Display)
		assert.Equal(t, "../Users/"+user.ID, group.Members[0].Ref)

		_, err = s.CreateGroup(ctx, &GroupModel{DisplayName: "Ops"})
		require.Error(t, err)
		assert.True(t, IsConflict(err))

		// Member refs resolve by id only.
		_, err = s.CreateGroup(ctx, &GroupModel{
			DisplayName: "Broken",
			Members:     []RefModel{{Value: "ghost"}},
		})
		require.Error(t, err)
		assert.True(t, IsBadRequest(err))

		items, total, err := s.FilterGroups(ctx, "displayName", "Ops", 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, group.ID, items[0].ID)

		_, _, err = s.FilterGroups(ctx, "displayName", "Nonexistent", 0, 0)
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})

	t.Run("UpdateGroupReplacesMembers", func(t *testing.T) {
		s := open(t)
		u1, err := s.CreateUser(ctx, newUser("ug1@x.com", "U", "One"))
		require.NoError(t, err)
		u2, err := s.CreateUser(ctx, newUser("ug2@x.com", "U", "Two"))
		require.NoError(t, err)
		group, err := s.CreateGroup(ctx, &GroupModel{
			DisplayName: "Rotating",
			Members:     []RefModel{{Value: u1.ID}},
		})
		require.NoError(t, err)

		updated, err := s.UpdateGroup(ctx, group.ID, &GroupModel{
			DisplayName: "Rotating",
			Members:     []RefModel{{Value: u2.ID}},
		})
		require.NoError(t, err)
		require.Len(t, updated.Members, 1)
		assert.Equal(t, u2.ID, updated.Members[0].Value)

		// No members key leaves the set untouched.
		updated, err = s.UpdateGroup(ctx, group.ID, &GroupModel{DisplayName: "Renamed"})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", updated.DisplayName)
		require.Len(t, updated.Members, 1)
		assert.Equal(t, u2.ID, updated.Members[0].Value)
	})

	t.Run("PatchGroupMembersSymmetry", func(t *testing.T) {
		s := open(t)
		user, err := s.CreateUser(ctx, newUser("sym@x.com", "S", "Y"))
		require.NoError(t, err)
		group, err := s.CreateGroup(ctx, &GroupModel{DisplayName: "Symmetric"})
		require.NoError(t, err)

		added, err := s.PatchGroup(ctx, group.ID, []PatchOperation{
			{Op: OpAdd, Path: "members", Members: []RefModel{{Value: user.ID}}},
		})
		require.NoError(t, err)
		require.Len(t, added.Members, 1)

		// Adding again does not duplicate.
		again, err := s.PatchGroup(ctx, group.ID, []PatchOperation{
			{Op: OpAdd, Path: "members", Members: []RefModel{{Value: user.ID}}},
		})
		require.NoError(t, err)
		assert.Len(t, again.Members, 1)

		removed, err := s.PatchGroup(ctx, group.ID, []PatchOperation{
			{Op: OpRemove, Path: "members", Members: []RefModel{{Value: user.ID}}},
		})
		require.NoError(t, err)
		assert.Empty(t, removed.Members)
	})

	t.Run("PatchGroupReplaceMembersAndDisplayName", func(t *testing.T) {
		s := open(t)
		u1, err := s.CreateUser(ctx, newUser("pg1@x.com", "P", "One"))
		require.NoError(t, err)
		u2, err := s.CreateUser(ctx, newUser("pg2@x.com", "P", "Two"))
		require.NoError(t, err)
		group, err := s.CreateGroup(ctx, &GroupModel{
			DisplayName: "Patchable",
			Members:     []RefModel{{Value: u1.ID}},
		})
		require.NoError(t, err)

		patched, err := s.PatchGroup(ctx, group.ID, []PatchOperation{
			{Op: OpReplace, Path: "members", Members: []RefModel{{Value: u2.ID}}},
			{Op: OpReplace, Fields: map[string]any{"displayName": "Patched"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "Patched", patched.DisplayName)
		require.Len(t, patched.Members, 1)
		assert.Equal(t, u2.ID, patched.Members[0].Value)

		// Whole-attribute remove without a member list is a no-op.
		noop, err := s.PatchGroup(ctx, group.ID, []PatchOperation{{Op: OpRemove}})
		require.NoError(t, err)
		assert.Len(t, noop.Members, 1)
	})

	t.Run("DeleteGroupCascades", func(t *testing.T) {
		s := open(t)
		user, err := s.CreateUser(ctx, newUser("dg@x.com", "D", "G"))
		require.NoError(t, err)
		group, err := s.CreateGroup(ctx, &GroupModel{
			DisplayName: "Ephemeral",
			Members:     []RefModel{{Value: user.ID}},
		})
		require.NoError(t, err)

		require.NoError(t, s.DeleteGroup(ctx, group.ID))

		got, err := s.GetUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Groups)

		err = s.DeleteGroup(ctx, group.ID)
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})

	t.Run("MembershipViews", func(t *testing.T) {
		s := open(t)
		user, err := s.CreateUser(ctx, newUser("v@x.com", "View", "Er"))
		require.NoError(t, err)
		group, err := s.CreateGroup(ctx, &GroupModel{
			DisplayName: "Viewers",
			Members:     []RefModel{{Value: user.ID}},
		})
		require.NoError(t, err)

		groups, err := s.GroupsForUser(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, group.ID, groups[0].Value)

		members, err := s.MembersForGroup(ctx, group.ID)
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.Equal(t, user.ID, members[0].Value)

		_, err = s.GroupsForUser(ctx, "missing")
		assert.True(t, IsNotFound(err))
		_, err = s.MembersForGroup(ctx, "missing")
		assert.True(t, IsNotFound(err))
	})

	t.Run("Seed", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Seed(ctx))

		users, total, err := s.ListUsers(ctx, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Equal(t, "john.doe@example.com", users[0].UserName)

		groups, _, err := s.ListGroups(ctx, 0, 0)
		require.NoError(t, err)
		require.Len(t, groups, 2)
		assert.Equal(t, "Administrators", groups[0].DisplayName)
		assert.Len(t, groups[0].Members, 1)
		assert.Len(t, groups[1].Members, 2)

		// Seeding again is a no-op.
		require.NoError(t, s.Seed(ctx))
		_, total, err = s.ListUsers(ctx, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestFileStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		s, err := NewFileStore(filepath.Join(t.TempDir(), "data.json"))
		require.NoError(t, err)
		return s
	})
}

func TestFileStorePersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)

	user, err := s.CreateUser(ctx, &UserModel{
		Active:   true,
		UserName: "persist@x.com",
	})
	require.NoError(t, err)
	_, err = s.CreateGroup(ctx, &GroupModel{
		DisplayName: "Persisted",
		Members:     []RefModel{{Value: user.ID}},
	})
	require.NoError(t, err)

	// A fresh store over the same file sees the full state.
	reopened, err := NewFileStore(path)
	require.NoError(t, err)

	got, err := reopened.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "persist@x.com", got.UserName)
	require.Len(t, got.Groups, 1)
	assert.Equal(t, "Persisted", got.Groups[0].Display)
}

func TestFileStoreFailedMutationLeavesStateIntact(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, &UserModel{UserName: "intact@x.com"})
	require.NoError(t, err)

	// An unresolvable group ref must not leave a half-created user behind.
	_, err = s.CreateUser(ctx, &UserModel{
		UserName: "half@x.com",
		Groups:   []RefModel{{Value: "ghost"}},
	})
	require.Error(t, err)

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	_, total, err := reopened.ListUsers(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}
