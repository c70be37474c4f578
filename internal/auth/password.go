package auth

import "golang.org/x/crypto/bcrypt"

// DefaultBcryptCost is the bcrypt cost factor for operator passwords
const DefaultBcryptCost = 12

// HashPassword hashes a plaintext password with bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), DefaultBcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks a plaintext password against a stored hash. A stored
// value that is not a bcrypt hash is compared directly, which keeps dev
// configs with plaintext passwords working.
func VerifyPassword(stored, password string) bool {
	if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)); err == nil {
		return true
	}
	if _, err := bcrypt.Cost([]byte(stored)); err != nil {
		return stored != "" && stored == password
	}
	return false
}
