package session

// Codes reported in AuthError.Code besides HTTP status strings.
const (
	CodeInvalidUserType       = "INVALID_USER_TYPE"
	CodeUserExistsSignIn      = "USER_EXISTS_SIGN_IN"
	CodeDatabaseError         = "DATABASE_ERROR"
	CodeUserCreationFailed    = "USER_CREATION_FAILED"
	CodeProfileCreationFailed = "PROFILE_CREATION_FAILED"
	CodeRegistrationFailed    = "REGISTRATION_FAILED"
	CodeProfileNotFound       = "PROFILE_NOT_FOUND"
)

// AuthError is the user-facing outcome of a failed auth operation.
type AuthError struct {
	Message string
	Code    string
}

func (e *AuthError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Message + " (" + e.Code + ")"
}

const (
	msgUserExists      = "An account with this email already exists. Please sign in instead."
	msgDatabaseError   = "Failed to complete registration. Please contact support."
	msgWeakPassword    = "Password does not meet requirements. Please choose a stronger password."
	msgInvalidEmail    = "Invalid email address. Please check your email and try again."
	msgInvalidInput    = "Invalid input. Please check your information and try again."
	msgProfileNotFound = "Your account profile could not be loaded. Please try again later."
)
