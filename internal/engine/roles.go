package engine

// DefaultRole is held by every player when a game defines no roles.
const DefaultRole = "player"

// RoleManager assigns named roles to players and rotates them. With
// AllowMultiplePlayersPerRole the players are laid out along turn order
// starting at the rotation offset: the first gets roles[0], the next
// roles[1], and everyone past the end shares the last role.
type RoleManager struct {
	s *RoleSnapshot
}

func NewRoleManager(s *RoleSnapshot) *RoleManager {
	if s.PlayerRoles == nil {
		s.PlayerRoles = map[string]string{}
	}
	if len(s.AvailableRoles) == 0 {
		s.AvailableRoles = []string{DefaultRole}
	}
	return &RoleManager{s: s}
}

func (r *RoleManager) RoleOf(playerID string) string {
	return r.s.PlayerRoles[playerID]
}

// Assign lays out roles from scratch for the given order.
func (r *RoleManager) Assign(order []string) {
	clear(r.s.PlayerRoles)
	if r.s.AllowMultiplePlayersPerRole {
		r.assignFromOffset(order)
		return
	}
	for i, id := range order {
		r.s.PlayerRoles[id] = r.s.AvailableRoles[i%len(r.s.AvailableRoles)]
	}
}

// Rotate moves every player one role forward. Called only together with a
// turn advance.
func (r *RoleManager) Rotate(order []string) {
	if r.s.AllowMultiplePlayersPerRole {
		if len(order) > 0 {
			r.s.Rotation = (r.s.Rotation + 1) % len(order)
		}
		r.assignFromOffset(order)
		return
	}
	index := make(map[string]int, len(r.s.AvailableRoles))
	for i, role := range r.s.AvailableRoles {
		index[role] = i
	}
	for _, id := range order {
		i, ok := index[r.s.PlayerRoles[id]]
		if !ok {
			i = -1
		}
		r.s.PlayerRoles[id] = r.s.AvailableRoles[(i+1)%len(r.s.AvailableRoles)]
	}
}

// Add gives a late joiner the role its position would have received.
func (r *RoleManager) Add(order []string, playerID string) {
	if r.s.AllowMultiplePlayersPerRole {
		r.assignFromOffset(order)
		return
	}
	r.s.PlayerRoles[playerID] = r.s.AvailableRoles[(len(order)-1)%len(r.s.AvailableRoles)]
}

// Remove drops the player; in multi mode the remaining layout is rebuilt so
// the first role is never left vacant.
func (r *RoleManager) Remove(order []string, playerID string) {
	delete(r.s.PlayerRoles, playerID)
	if r.s.AllowMultiplePlayersPerRole {
		if len(order) > 0 {
			r.s.Rotation %= len(order)
		} else {
			r.s.Rotation = 0
		}
		r.assignFromOffset(order)
	}
}

// Holders lists players holding role in turn order.
func (r *RoleManager) Holders(order []string, role string) []string {
	var out []string
	for _, id := range order {
		if r.s.PlayerRoles[id] == role {
			out = append(out, id)
		}
	}
	return out
}

func (r *RoleManager) assignFromOffset(order []string) {
	n := len(order)
	last := len(r.s.AvailableRoles) - 1
	for i := 0; i < n; i++ {
		id := order[(r.s.Rotation+i)%n]
		r.s.PlayerRoles[id] = r.s.AvailableRoles[min(i, last)]
	}
}
