package constants

const (
	// user roles stored in the role column
	ROLE_USER  = 0
	ROLE_ADMIN = 1

	// standard format of dates in the system (release_date, creation_date)
	DATE_FORMAT = "2006-01-02"

	SESSION_COOKIE_NAME = "session_token"

	// login rate limiting (requests per minute per IP)
	LOGIN_MAX_ATTEMPTS = 5

	// scrypt parameters for password hashing
	SCRYPT_N       = 16384
	SCRYPT_R       = 8
	SCRYPT_P       = 1
	SCRYPT_KEY_LEN = 32
	SALT_LENGTH    = 16

	WEBSITE_NAME_KEY     = "website_name"
	DEFAULT_WEBSITE_NAME = "CMSmall"
)
