package consts

type PasskeySessionType string

const (
	PasskeySessionRegistration PasskeySessionType = "registration"
	PasskeySessionLogin        PasskeySessionType = "login"
	MaxUserPasskeyCount                           = 10
	PasskeyNameMaxRunes                           = 100
)
