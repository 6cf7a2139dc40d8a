package domain

// EmailAuthKey is the single live verification key for an email address.
type EmailAuthKey struct {
	Email     string `db:"email"`
	Key       string `db:"auth_key"`
	CreatedAt int64  `db:"created_at"` // unix millis
}
