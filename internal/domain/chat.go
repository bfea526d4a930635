package domain

// Participant is one of the two members of a direct chat.
type Participant struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
}

func (p Participant) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Username
}

// Chat is a direct conversation between exactly two participants.
type Chat struct {
	ID           int64         `json:"chat_id"`
	Participants []Participant `json:"participants"`
}

// Counterpart returns the participant whose username differs from the
// session's username.
func (c Chat) Counterpart(username string) (Participant, bool) {
	for _, p := range c.Participants {
		if p.Username != username {
			return p, true
		}
	}
	return Participant{}, false
}

// User is an authenticated account as reported by GET /me.
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
}

func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}
