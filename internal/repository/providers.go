package repository

import (
	"gorm.io/gorm"
)

type Repositories struct {
	User      UserStore
	MagicLink MagicLinkTokenStore
	Session   SessionStore
	Passkey   PasskeyStore
	System    SystemStore
}

func NewUserRepository(db *gorm.DB) UserStore {
	return &UserRepository{db: db}
}

func NewMagicLinkTokenRepository(db *gorm.DB) MagicLinkTokenStore {
	return &MagicLinkTokenRepository{db: db}
}

func NewSessionRepository(db *gorm.DB) SessionStore {
	return &SessionRepository{db: db}
}

func NewPasskeyRepository(db *gorm.DB) PasskeyStore {
	return &PasskeyRepository{db: db}
}

func NewSystemRepository(db *gorm.DB) SystemStore {
	return &SystemRepository{db: db}
}

func NewRepositories(user UserStore, magicLink MagicLinkTokenStore, session SessionStore, passkey PasskeyStore, system SystemStore) *Repositories {
	return &Repositories{
		User:      user,
		MagicLink: magicLink,
		Session:   session,
		Passkey:   passkey,
		System:    system,
	}
}
