package model

import "time"

// User represents an application user record as stored in the
// `users` table. Each field corresponds to a column in the
// database. The json tags are omitted here because these structs
// are primarily used internally by the repository layer; handlers
// define separate response types.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Email        – unique email address.
//	FullName     – display name shown to admins.
//	PasswordHash – bcrypt hashed password.
//	Role         – STUDENT, ADMIN or SUPERADMIN.
//	IsActive     – whether the account is active.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	FullName     string    // users.full_name
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// Kind returns the actor variant for the user's stored role.
func (u User) Kind() ActorKind {
	k, _ := KindFromRole(u.Role)
	return k
}
