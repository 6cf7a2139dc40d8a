package domain

// Member is a community account. Email is the natural key.
type Member struct {
	Email        string  `db:"email"`
	Name         string  `db:"name"`
	Hash         string  `db:"password_hash"`
	Phone        string  `db:"phone"`
	Address      string  `db:"address"`
	ProfileImage *string `db:"profile_image"`
	CreatedAt    string  `db:"created_at"`
	UpdatedAt    string  `db:"updated_at"`
}

// MemberView is a Member without its password hash. It is what sessions hold
// and what callers get back.
type MemberView struct {
	Email        string  `json:"memberEmail"`
	Name         string  `json:"memberName"`
	Phone        string  `json:"memberPhone"`
	Address      string  `json:"memberAddress"`
	ProfileImage *string `json:"memberProfileImage"`
	CreatedAt    string  `json:"createdAt,omitempty"`
}

func (m *Member) View() MemberView {
	return MemberView{
		Email:        m.Email,
		Name:         m.Name,
		Phone:        m.Phone,
		Address:      m.Address,
		ProfileImage: m.ProfileImage,
		CreatedAt:    m.CreatedAt,
	}
}

// MemberPatch carries the fields a member may change on their own account.
// Password is the new plain-text password; empty means unchanged.
type MemberPatch struct {
	Email    string
	Name     string
	Phone    string
	Address  string
	Password string
}

// Upload is an inbound file payload.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}
