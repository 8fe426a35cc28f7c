package directory

import (
	"fmt"

	"github.com/google/uuid"
)

// dataset holds the three tables in their stored order. The memory store
// keeps one in process; the file store persists the same shape as a single
// JSON document. All mutators operate on a clone so a failing multi-step
// mutation is never observable.
type dataset struct {
	Users       []User       `json:"users"`
	Groups      []Group      `json:"groups"`
	Memberships []Membership `json:"memberships"`
}

func newDataset() *dataset {
	return &dataset{
		Users:       []User{},
		Groups:      []Group{},
		Memberships: []Membership{},
	}
}

func (d *dataset) clone() *dataset {
	c := &dataset{
		Users:       make([]User, len(d.Users)),
		Groups:      make([]Group, len(d.Groups)),
		Memberships: make([]Membership, len(d.Memberships)),
	}
	copy(c.Users, d.Users)
	copy(c.Groups, d.Groups)
	copy(c.Memberships, d.Memberships)
	return c
}

// Lookup helpers

func (d *dataset) userIndexByID(id string) int {
	for i := range d.Users {
		if d.Users[i].ID == id {
			return i
		}
	}
	return -1
}

func (d *dataset) userIndexByUserName(userName string) int {
	for i := range d.Users {
		if d.Users[i].UserName == userName {
			return i
		}
	}
	return -1
}

func (d *dataset) groupIndexByID(id string) int {
	for i := range d.Groups {
		if d.Groups[i].ID == id {
			return i
		}
	}
	return -1
}

func (d *dataset) groupIndexByDisplayName(displayName string) int {
	for i := range d.Groups {
		if d.Groups[i].DisplayName == displayName {
			return i
		}
	}
	return -1
}

// Derived membership views. Dangling membership rows cannot exist because
// every mutation enforces referential integrity, so missing joins are
// simply skipped.

func (d *dataset) groupsForUser(userID string) []GroupRef {
	refs := []GroupRef{}
	for _, m := range d.Memberships {
		if m.UserID != userID {
			continue
		}
		if gi := d.groupIndexByID(m.GroupID); gi >= 0 {
			g := d.Groups[gi]
			refs = append(refs, GroupRef{
				Value:   g.ID,
				Ref:     "../Groups/" + g.ID,
				Display: g.DisplayName,
			})
		}
	}
	return refs
}

func (d *dataset) membersForGroup(groupID string) []MemberRef {
	refs := []MemberRef{}
	for _, m := range d.Memberships {
		if m.GroupID != groupID {
			continue
		}
		if ui := d.userIndexByID(m.UserID); ui >= 0 {
			u := d.Users[ui]
			refs = append(refs, MemberRef{
				Value:   u.ID,
				Ref:     "../Users/" + u.ID,
				Display: u.DisplayName(),
			})
		}
	}
	return refs
}

func (d *dataset) hydrateUser(u User) User {
	u.Groups = d.groupsForUser(u.ID)
	return u
}

func (d *dataset) hydrateGroup(g Group) Group {
	g.Members = d.membersForGroup(g.ID)
	return g
}

// pageBounds maps 1-based startIndex/count onto slice bounds over a set of
// the given length. count <= 0 means all remaining entries.
func pageBounds(startIndex, count, length int) (int, int) {
	if startIndex <= 0 {
		startIndex = 1
	}
	lo := startIndex - 1
	if lo > length {
		lo = length
	}
	hi := length
	if count > 0 && lo+count < hi {
		hi = lo + count
	}
	return lo, hi
}

// Reference resolution. Membership references resolve by id first and by
// display name second; an unresolvable reference fails the whole mutation.

func (d *dataset) resolveGroupRefs(refs []RefModel) ([]string, *Error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.Value != "" {
			if d.groupIndexByID(ref.Value) >= 0 {
				ids = append(ids, ref.Value)
				continue
			}
		}
		if ref.Display != "" {
			if gi := d.groupIndexByDisplayName(ref.Display); gi >= 0 {
				ids = append(ids, d.Groups[gi].ID)
				continue
			}
		}
		missing := ref.Value
		if missing == "" {
			missing = ref.Display
		}
		return nil, NewBadRequestError("User", fmt.Sprintf("group %s not found", missing))
	}
	return ids, nil
}

func (d *dataset) resolveUserRefs(refs []RefModel) ([]string, *Error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.Value == "" || d.userIndexByID(ref.Value) < 0 {
			return nil, NewBadRequestError("Group", fmt.Sprintf("user %s not found", ref.Value))
		}
		ids = append(ids, ref.Value)
	}
	return ids, nil
}

func (d *dataset) hasMembership(groupID, userID string) bool {
	for _, m := range d.Memberships {
		if m.GroupID == groupID && m.UserID == userID {
			return true
		}
	}
	return false
}

func (d *dataset) addMembership(groupID, userID string) {
	if d.hasMembership(groupID, userID) {
		return
	}
	d.Memberships = append(d.Memberships, Membership{
		ID:      uuid.New().String(),
		GroupID: groupID,
		UserID:  userID,
	})
}

func (d *dataset) dropMembershipsForUser(userID string) {
	kept := d.Memberships[:0]
	for _, m := range d.Memberships {
		if m.UserID != userID {
			kept = append(kept, m)
		}
	}
	d.Memberships = kept
}

func (d *dataset) dropMembershipsForGroup(groupID string) {
	kept := d.Memberships[:0]
	for _, m := range d.Memberships {
		if m.GroupID != groupID {
			kept = append(kept, m)
		}
	}
	d.Memberships = kept
}

func (d *dataset) removeMembership(groupID, userID string) {
	kept := d.Memberships[:0]
	for _, m := range d.Memberships {
		if !(m.GroupID == groupID && m.UserID == userID) {
			kept = append(kept, m)
		}
	}
	d.Memberships = kept
}

// User mutations

func (d *dataset) createUser(model *UserModel) (*User, *Error) {
	if model.UserName == "" {
		return nil, NewBadRequestError("User", "userName is required")
	}
	if d.userIndexByUserName(model.UserName) >= 0 {
		return nil, NewConflictError("User", "user already exists: "+model.UserName)
	}

	user := User{
		ID:         uuid.New().String(),
		Active:     model.Active,
		UserName:   model.UserName,
		GivenName:  model.GivenName,
		MiddleName: model.MiddleName,
		FamilyName: model.FamilyName,
		Email:      model.Email,
	}

	groupIDs, derr := d.resolveGroupRefs(model.Groups)
	if derr != nil {
		return nil, derr
	}

	d.Users = append(d.Users, user)
	for _, gid := range groupIDs {
		d.addMembership(gid, user.ID)
	}

	hydrated := d.hydrateUser(user)
	return &hydrated, nil
}

func (d *dataset) updateUser(id string, model *UserModel) (*User, *Error) {
	ui := d.userIndexByID(id)
	if ui < 0 {
		return nil, NewNotFoundError("User", "user not found")
	}

	var groupIDs []string
	if model.Groups != nil {
		resolved, derr := d.resolveGroupRefs(model.Groups)
		if derr != nil {
			return nil, derr
		}
		groupIDs = resolved
	}

	d.Users[ui] = User{
		ID:         id,
		Active:     model.Active,
		UserName:   model.UserName,
		GivenName:  model.GivenName,
		MiddleName: model.MiddleName,
		FamilyName: model.FamilyName,
		Email:      model.Email,
	}

	// A payload without a groups list leaves the membership set untouched.
	if model.Groups != nil {
		d.dropMembershipsForUser(id)
		for _, gid := range groupIDs {
			d.addMembership(gid, id)
		}
	}

	hydrated := d.hydrateUser(d.Users[ui])
	return &hydrated, nil
}

func (d *dataset) patchUser(id string, ops []PatchOperation) (*User, *Error) {
	ui := d.userIndexByID(id)
	if ui < 0 {
		return nil, NewNotFoundError("User", "user not found")
	}

	user := d.Users[ui]
	for _, op := range ops {
		if op.TargetsMembers() {
			return nil, NewBadRequestError("User", "members is not a user attribute")
		}
		switch op.Op {
		case OpAdd, OpReplace:
			applyUserFields(&user, op.Fields)
		case OpRemove:
			// Whole-attribute remove is accepted as a no-op returning the
			// current state.
		default:
			return nil, NewForbiddenError("User", "operation not supported: "+op.Op)
		}
	}

	d.Users[ui] = user
	hydrated := d.hydrateUser(user)
	return &hydrated, nil
}

func (d *dataset) deleteUser(id string) *Error {
	ui := d.userIndexByID(id)
	if ui < 0 {
		return NewNotFoundError("User", "user not found")
	}
	d.dropMembershipsForUser(id)
	d.Users = append(d.Users[:ui], d.Users[ui+1:]...)
	return nil
}

// Group mutations

func (d *dataset) createGroup(model *GroupModel) (*Group, *Error) {
	if model.DisplayName == "" {
		return nil, NewBadRequestError("Group", "displayName is required")
	}
	if d.groupIndexByDisplayName(model.DisplayName) >= 0 {
		return nil, NewConflictError("Group", "group already exists: "+model.DisplayName)
	}

	group := Group{
		ID:          uuid.New().String(),
		DisplayName: model.DisplayName,
	}

	userIDs, derr := d.resolveUserRefs(model.Members)
	if derr != nil {
		return nil, derr
	}

	d.Groups = append(d.Groups, group)
	for _, uid := range userIDs {
		d.addMembership(group.ID, uid)
	}

	hydrated := d.hydrateGroup(group)
	return &hydrated, nil
}

func (d *dataset) updateGroup(id string, model *GroupModel) (*Group, *Error) {
	gi := d.groupIndexByID(id)
	if gi < 0 {
		return nil, NewNotFoundError("Group", "group not found")
	}

	var userIDs []string
	if model.Members != nil {
		resolved, derr := d.resolveUserRefs(model.Members)
		if derr != nil {
			return nil, derr
		}
		userIDs = resolved
	}

	displayName := model.DisplayName
	if displayName == "" {
		displayName = d.Groups[gi].DisplayName
	}
	d.Groups[gi] = Group{ID: id, DisplayName: displayName}

	if model.Members != nil {
		d.dropMembershipsForGroup(id)
		for _, uid := range userIDs {
			d.addMembership(id, uid)
		}
	}

	hydrated := d.hydrateGroup(d.Groups[gi])
	return &hydrated, nil
}

func (d *dataset) patchGroup(id string, ops []PatchOperation) (*Group, *Error) {
	gi := d.groupIndexByID(id)
	if gi < 0 {
		return nil, NewNotFoundError("Group", "group not found")
	}

	group := d.Groups[gi]
	for _, op := range ops {
		switch op.Op {
		case OpAdd, OpReplace:
			if op.TargetsMembers() {
				userIDs, derr := d.resolveUserRefs(op.Members)
				if derr != nil {
					return nil, derr
				}
				if op.Op == OpReplace {
					d.dropMembershipsForGroup(id)
				}
				for _, uid := range userIDs {
					d.addMembership(id, uid)
				}
				continue
			}
			if v, ok := op.Fields["displayName"]; ok {
				if s, ok := v.(string); ok && s != "" {
					group.DisplayName = s
				}
			}
		case OpRemove:
			if op.TargetsMembers() && len(op.Members) > 0 {
				for _, ref := range op.Members {
					d.removeMembership(id, ref.Value)
				}
			}
			// Remove without an explicit member list is a no-op returning
			// the current state.
		default:
			return nil, NewForbiddenError("Group", "operation not supported: "+op.Op)
		}
	}

	d.Groups[gi] = group
	hydrated := d.hydrateGroup(group)
	return &hydrated, nil
}

func (d *dataset) deleteGroup(id string) *Error {
	gi := d.groupIndexByID(id)
	if gi < 0 {
		return NewNotFoundError("Group", "group not found")
	}
	d.dropMembershipsForGroup(id)
	d.Groups = append(d.Groups[:gi], d.Groups[gi+1:]...)
	return nil
}

// applyUserFields copies canonical scalar patch values onto a user. Keys
// were normalized by the patch interpreter; unknown keys are ignored so
// provider-specific extras do not fail the whole operation.
func applyUserFields(u *User, fields map[string]any) {
	for key, value := range fields {
		switch key {
		case "active":
			u.Active = coerceBool(value)
		case "userName":
			u.UserName = coerceString(value)
		case "givenName":
			u.GivenName = coerceString(value)
		case "middleName":
			u.MiddleName = coerceString(value)
		case "familyName":
			u.FamilyName = coerceString(value)
		case "email":
			u.Email = coerceString(value)
		}
	}
}

// coerceBool accepts the boolean spellings identity providers actually
// send: JSON booleans and the strings "true"/"True".
func coerceBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "True"
	}
	return false
}

func coerceString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// seed fills an empty dataset with the sample identities used for local
// development.
func (d *dataset) seed() {
	if len(d.Users) > 0 {
		return
	}

	john, _ := d.createUser(&UserModel{
		Active:     true,
		UserName:   "john.doe@example.com",
		GivenName:  "John",
		FamilyName: "Doe",
		Email:      "john.doe@example.com",
	})
	jane, _ := d.createUser(&UserModel{
		Active:     true,
		UserName:   "jane.smith@example.com",
		GivenName:  "Jane",
		FamilyName: "Smith",
		Email:      "jane.smith@example.com",
	})

	d.createGroup(&GroupModel{
		DisplayName: "Administrators",
		Members:     []RefModel{{Value: john.ID}},
	})
	d.createGroup(&GroupModel{
		DisplayName: "Users",
		Members:     []RefModel{{Value: john.ID}, {Value: jane.ID}},
	})
}
